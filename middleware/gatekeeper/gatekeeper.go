// Package gatekeeper compõe os estágios do gateway numa única cadeia:
//
//	clientid -> audit -> security -> ratelimit -> next
//
// A identidade é resolvida uma vez. O audit envolve os outros estágios e vê a
// resposta final, inclusive as rejeições 403/413/429. O security roda antes
// do rate limit, então cliente bloqueado ou corpo grande não consomem cota.
package gatekeeper

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"risk-gateway/middleware/audit"
	auditapp "risk-gateway/middleware/audit/application"
	"risk-gateway/middleware/clientid"
	"risk-gateway/middleware/ratelimit"
	rldomain "risk-gateway/middleware/ratelimit/domain"
	rlinfra "risk-gateway/middleware/ratelimit/infra"
	"risk-gateway/middleware/security"
	secdomain "risk-gateway/middleware/security/domain"
	secinfra "risk-gateway/middleware/security/infra"
)

type Options struct {
	Resolver clientid.Resolver

	// BlockList nil usa um conjunto em memória vazio.
	BlockList       secdomain.BlockList
	MaxBodyBytes    int64
	BlockSuspicious bool

	// DisableRateLimit remove o estágio de rate limit da cadeia.
	DisableRateLimit bool
	// Store nil usa a janela em memória.
	Store  rldomain.WindowStore
	Stats  rldomain.StatsStore
	Policy rldomain.Policy

	// Recorder nil desliga a auditoria.
	Recorder *auditapp.Recorder

	Now    func() time.Time
	Logger *slog.Logger
}

type Pipeline struct {
	opts      Options
	blockList secdomain.BlockList
	store     rldomain.WindowStore
}

func New(opts Options) (*Pipeline, error) {
	if opts.MaxBodyBytes < 0 {
		return nil, errors.New("gatekeeper: MaxBodyBytes must be >= 0")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &Pipeline{opts: opts, blockList: opts.BlockList, store: opts.Store}
	if p.blockList == nil {
		p.blockList = secinfra.NewMemoryBlockList()
	}
	if p.store == nil {
		p.store = rlinfra.NewMemoryWindowStore(rlinfra.WithClock(opts.Now))
	}
	return p, nil
}

// Handler envolve next com a cadeia completa.
func (p *Pipeline) Handler(next http.Handler) http.Handler {
	h := next
	if !p.opts.DisableRateLimit {
		h = ratelimit.Middleware(ratelimit.Options{
			Store:  p.store,
			Stats:  p.opts.Stats,
			Policy: p.opts.Policy,
			Now:    p.opts.Now,
			Logger: p.opts.Logger,
		})(h)
	}
	h = security.Middleware(security.Options{
		BlockList:       p.blockList,
		MaxBodyBytes:    p.opts.MaxBodyBytes,
		BlockSuspicious: p.opts.BlockSuspicious,
		Logger:          p.opts.Logger,
	})(h)
	h = audit.Middleware(audit.Options{
		Recorder: p.opts.Recorder,
		Now:      p.opts.Now,
	})(h)
	return clientid.Middleware(p.opts.Resolver)(h)
}

// Block passa a negar a identidade a partir da próxima requisição.
func (p *Pipeline) Block(identity string) error {
	if err := p.blockList.Block(identity); err != nil {
		return err
	}
	p.opts.Logger.Warn("client blocked", "identity", identity)
	return nil
}

func (p *Pipeline) Unblock(identity string) error {
	if err := p.blockList.Unblock(identity); err != nil {
		return err
	}
	p.opts.Logger.Info("client unblocked", "identity", identity)
	return nil
}

func (p *Pipeline) Blocked() []string { return p.blockList.List() }

func (p *Pipeline) IsBlocked(identity string) bool { return p.blockList.Contains(identity) }

// Store expõe a janela usada pelo rate limit (janitor, métricas).
func (p *Pipeline) Store() rldomain.WindowStore { return p.store }
