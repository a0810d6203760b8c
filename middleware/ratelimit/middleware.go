package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"risk-gateway/middleware/clientid"
	"risk-gateway/middleware/httpx"
	"risk-gateway/middleware/ratelimit/application"
	"risk-gateway/middleware/ratelimit/domain"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderRetry     = "Retry-After"
)

type ClassifyFunc func(r *http.Request) domain.EndpointClass

type Options struct {
	Store  domain.WindowStore
	Stats  domain.StatsStore
	Policy domain.Policy
	// ClassifyFn mapeia a requisição para uma classe; nil classifica pelo path.
	ClassifyFn ClassifyFunc
	// IdentityFn resolve o cliente; nil usa a identidade do contexto
	// (clientid.Middleware) ou a precedência padrão.
	IdentityFn func(r *http.Request) string
	Now        func() time.Time
	Logger     *slog.Logger
}

func classifyByPath(r *http.Request) domain.EndpointClass { return domain.Classify(r.URL.Path) }

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.ClassifyFn == nil {
		opts.ClassifyFn = classifyByPath
	}
	if opts.IdentityFn == nil {
		opts.IdentityFn = clientid.FromRequest
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	svc := application.Service{
		Store:  opts.Store,
		Policy: opts.Policy,
		Now:    opts.Now,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := opts.IdentityFn(r)
			class := opts.ClassifyFn(r)

			dec, err := svc.Decide(r.Context(), identity, class)
			if err != nil {
				opts.Logger.Error("rate limit store failed, admitting request",
					"identity", identity, "class", class, "error", err)
			}
			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key{Identity: identity, Class: class},
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      opts.Now(),
				})
			}

			setQuota := func(h http.Header) {
				h.Set(HeaderLimit, formatInt(dec.Limit))
				h.Set(HeaderRemaining, formatInt(dec.Remaining))
				h.Set(HeaderReset, formatInt64(dec.Reset.Unix()))
			}
			setQuota(w.Header())

			if !dec.Allowed {
				opts.Logger.Warn("rate limit exceeded", "identity", identity, "class", class)
				httpx.RejectRetry(w, http.StatusTooManyRequests,
					"Too many requests. Please try again later.",
					int(dec.RetryAfter.Seconds()))
				return
			}

			// o upstream não decide a cota: reaplica na hora do status
			next.ServeHTTP(httpx.EnforceHeaders(w, setQuota), r)
		})
	}
}
