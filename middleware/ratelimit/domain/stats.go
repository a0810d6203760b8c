package domain

import (
	"context"
	"strings"
	"time"
)

const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
)

// StatsEvent representa uma decisão do rate limit.
//
// Identity e Path têm cardinalidade aberta; stores que viram séries ou chaves
// (Redis, Prometheus) devem tratá-los como opcionais.
type StatsEvent struct {
	Key     Key
	Allowed bool

	Method string
	Path   string

	At time.Time
}

func (ev StatsEvent) Outcome() string {
	if ev.Allowed {
		return OutcomeAllowed
	}
	return OutcomeDenied
}

// Route devolve "METHOD /path", ou "" quando nenhum dos dois foi informado.
func (ev StatsEvent) Route() string {
	return strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
}

// StatsStore persiste estatísticas do rate limit. Erros são best-effort:
// o middleware não rejeita a requisição por causa deles.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
