package infra

import (
	"time"

	"risk-gateway/middleware/ratelimit/domain"
)

// window é um ring buffer de timestamps em ordem de inserção (= ordem temporal).
type window struct {
	ring     []time.Time
	head     int
	count    int
	span     time.Duration
	lastSeen time.Time
}

func newWindow(rule domain.Rule) *window {
	return &window{ring: make([]time.Time, rule.Quota), span: rule.Window}
}

// configure ajusta a capacidade se a regra mudou, preservando os mais recentes.
func (w *window) configure(rule domain.Rule) {
	w.span = rule.Window
	if len(w.ring) == rule.Quota {
		return
	}
	keep := w.count
	if keep > rule.Quota {
		keep = rule.Quota
	}
	ring := make([]time.Time, rule.Quota)
	for i := 0; i < keep; i++ {
		ring[i] = w.at(w.count - keep + i)
	}
	w.ring, w.head, w.count = ring, 0, keep
}

// evict descarta timestamps estritamente anteriores ao cutoff. Um timestamp
// igual ao cutoff continua dentro da janela.
func (w *window) evict(cutoff time.Time) {
	for w.count > 0 && w.ring[w.head].Before(cutoff) {
		w.ring[w.head] = time.Time{}
		w.head = (w.head + 1) % len(w.ring)
		w.count--
	}
}

// push registra ts. Chamador garante count < len(ring).
func (w *window) push(ts time.Time) {
	if w.count > 0 {
		// mantém a sequência não decrescente mesmo se o relógio do chamador
		// foi lido antes do lock por uma requisição concorrente
		if newest := w.at(w.count - 1); ts.Before(newest) {
			ts = newest
		}
	}
	w.ring[(w.head+w.count)%len(w.ring)] = ts
	w.count++
}

func (w *window) at(i int) time.Time {
	return w.ring[(w.head+i)%len(w.ring)]
}
