package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key identifica uma janela: (identidade do cliente, classe do endpoint).
type Key struct {
	Identity string
	Class    EndpointClass
}

func (k Key) String() string { return string(k.Class) + ":" + k.Identity }

// Rule é a cota de uma classe: no máximo Quota requisições na janela deslizante Window.
type Rule struct {
	Quota  int
	Window time.Duration
}

// Admission é o resultado bruto de uma tentativa de admissão na janela.
//
// Count é o número de timestamps registrados após a tentativa (inclui a
// requisição atual quando Admitted=true).
type Admission struct {
	Admitted bool
	Count    int
}

// WindowStore mantém o histórico de timestamps por Key.
//
// Admit precisa ser atômico por chave: evict + contagem + append acontecem
// sem intercalação com outra requisição da mesma Key. Uma tentativa rejeitada
// não é registrada.
type WindowStore interface {
	Admit(ctx context.Context, key Key, rule Rule, now time.Time) (Admission, error)
}

type Decision struct {
	Allowed bool
	Class   EndpointClass

	Limit     int
	Remaining int
	// Reset é now + janela, usado em X-RateLimit-Reset.
	Reset time.Time
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
