package application

import (
	"context"
	"time"

	"risk-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit por janela deslizante.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store  domain.WindowStore
	Policy domain.Policy
	// Now é o relógio; nil usa time.Now.
	Now func() time.Time
}

// Decide consulta a janela de (identity, class) e devolve a decisão com os
// valores dos headers de cota. Erro do store admite a requisição e volta
// junto com a decisão, só para log.
func (s Service) Decide(ctx context.Context, identity string, class domain.EndpointClass) (domain.Decision, error) {
	now := s.now()
	rule := s.Policy.For(class)

	dec := domain.Decision{
		Allowed:   true,
		Class:     class,
		Limit:     rule.Quota,
		Remaining: rule.Quota,
		Reset:     now.Add(rule.Window),
	}
	if s.Store == nil {
		return dec, nil
	}

	adm, err := s.Store.Admit(ctx, domain.Key{Identity: identity, Class: class}, rule, now)
	if err != nil {
		return dec, err
	}

	dec.Allowed = adm.Admitted
	dec.Remaining = rule.Quota - adm.Count
	if dec.Remaining < 0 {
		dec.Remaining = 0
	}
	if !adm.Admitted {
		dec.RetryAfter = rule.Window
	}
	return dec, nil
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
