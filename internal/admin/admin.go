// Package admin expõe a API de operação do gateway (porta separada):
//
//	GET    /healthz
//	GET    /metrics
//	GET    /stats
//	GET    /blocklist
//	PUT    /blocklist/{identity}
//	DELETE /blocklist/{identity}
package admin

import (
	"log/slog"
	"net/http"
	"net/url"

	"risk-gateway/middleware/httpx"
	rlinfra "risk-gateway/middleware/ratelimit/infra"
	secdomain "risk-gateway/middleware/security/domain"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Blocker é o lado de escrita da lista de bloqueio (gatekeeper.Pipeline).
type Blocker interface {
	Block(identity string) error
	Unblock(identity string) error
	Blocked() []string
	IsBlocked(identity string) bool
}

type Options struct {
	Blocker Blocker
	// Stats e Windows são opcionais; ausentes, /stats devolve só o que houver.
	Stats    *rlinfra.MemoryStatsStore
	Windows  interface{ Len() int }
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type statsResponse struct {
	TrackedKeys *int              `json:"tracked_keys,omitempty"`
	Decisions   *rlinfra.Snapshot `json:"decisions,omitempty"`
}

type blockResponse struct {
	Identity string `json:"identity"`
	Blocked  bool   `json:"blocked"`
}

func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{opts: opts}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/stats", h.stats)
	r.Route("/blocklist", func(r chi.Router) {
		r.Get("/", h.listBlocked)
		r.Put("/{identity}", h.block)
		r.Delete("/{identity}", h.unblock)
	})
	return r
}

type handlers struct {
	opts Options
}

func (h *handlers) stats(w http.ResponseWriter, _ *http.Request) {
	var resp statsResponse
	if h.opts.Windows != nil {
		n := h.opts.Windows.Len()
		resp.TrackedKeys = &n
	}
	if h.opts.Stats != nil {
		snap := h.opts.Stats.Snapshot()
		resp.Decisions = &snap
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *handlers) listBlocked(w http.ResponseWriter, _ *http.Request) {
	if h.opts.Blocker == nil {
		httpx.Reject(w, http.StatusNotImplemented, "block list not configured")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string][]string{"blocked": h.opts.Blocker.Blocked()})
}

func (h *handlers) block(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, true)
}

func (h *handlers) unblock(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, false)
}

func (h *handlers) mutate(w http.ResponseWriter, r *http.Request, block bool) {
	if h.opts.Blocker == nil {
		httpx.Reject(w, http.StatusNotImplemented, "block list not configured")
		return
	}
	// IPv6 chega escapado no path
	raw, err := url.PathUnescape(chi.URLParam(r, "identity"))
	if err != nil {
		httpx.Reject(w, http.StatusBadRequest, "invalid identity")
		return
	}
	identity, err := secdomain.NormalizeIdentity(raw)
	if err != nil {
		httpx.Reject(w, http.StatusBadRequest, err.Error())
		return
	}

	if block {
		err = h.opts.Blocker.Block(identity)
	} else {
		err = h.opts.Blocker.Unblock(identity)
	}
	if err != nil {
		h.opts.Logger.Error("block list update failed", "identity", identity, "block", block, "error", err)
		httpx.Reject(w, http.StatusInternalServerError, "block list update failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, blockResponse{Identity: identity, Blocked: h.opts.Blocker.IsBlocked(identity)})
}
