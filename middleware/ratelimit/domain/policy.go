package domain

import (
	"fmt"
	"time"
)

// Policy é o mapeamento imutável EndpointClass -> Rule.
//
// Construa com DefaultPolicy ou NewPolicy; o mapa interno nunca é exposto.
type Policy struct {
	rules map[EndpointClass]Rule
}

// DefaultPolicy: auth 10/60s, upload 5/60s, api 200/60s, default 100/60s.
func DefaultPolicy() Policy {
	return Policy{rules: map[EndpointClass]Rule{
		ClassAuth:    {Quota: 10, Window: 60 * time.Second},
		ClassUpload:  {Quota: 5, Window: 60 * time.Second},
		ClassAPI:     {Quota: 200, Window: 60 * time.Second},
		ClassDefault: {Quota: 100, Window: 60 * time.Second},
	}}
}

// NewPolicy parte dos defaults e aplica overrides. Classes ausentes em
// overrides mantêm o default.
func NewPolicy(overrides map[EndpointClass]Rule) (Policy, error) {
	p := DefaultPolicy()
	for class, rule := range overrides {
		if _, ok := p.rules[class]; !ok {
			return Policy{}, fmt.Errorf("unknown endpoint class %q", class)
		}
		if rule.Quota <= 0 || rule.Window <= 0 {
			return Policy{}, fmt.Errorf("rule for %q must have positive quota and window", class)
		}
		p.rules[class] = rule
	}
	return p, nil
}

// For devolve a regra da classe; classe desconhecida cai em default.
func (p Policy) For(class EndpointClass) Rule {
	if r, ok := p.rules[class]; ok {
		return r
	}
	if p.rules == nil {
		return DefaultPolicy().For(class)
	}
	return p.rules[ClassDefault]
}

// MaxWindow é a maior janela configurada.
func (p Policy) MaxWindow() time.Duration {
	var max time.Duration
	for _, class := range Classes() {
		if w := p.For(class).Window; w > max {
			max = w
		}
	}
	return max
}
