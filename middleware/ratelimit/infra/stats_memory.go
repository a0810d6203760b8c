package infra

import (
	"context"
	"sync"

	"risk-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// MemoryStatsStore é uma implementação simples em memória, exposta pela API
// de administração.
//
// Não faz expiração: com WithTrackKeys(true) a cardinalidade cresce com o
// número de clientes.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byClass map[domain.EndpointClass]Counters
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byClass: make(map[domain.EndpointClass]Counters),
		byRoute: make(map[string]Counters),
		byKey:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Route()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)

	c := s.byClass[ev.Key.Class]
	c.add(ev.Allowed)
	s.byClass[ev.Key.Class] = c

	if route != "" {
		r := s.byRoute[route]
		r.add(ev.Allowed)
		s.byRoute[route] = r
	}

	if s.trackKeys {
		k := s.byKey[ev.Key.String()]
		k.add(ev.Allowed)
		s.byKey[ev.Key.String()] = k
	}
	return nil
}

// Snapshot é a visão serializável dos contadores.
type Snapshot struct {
	Total   Counters            `json:"total"`
	ByClass map[string]Counters `json:"by_class"`
	ByRoute map[string]Counters `json:"by_route"`
	ByKey   map[string]Counters `json:"by_key,omitempty"`
}

func (s *MemoryStatsStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		Total:   s.total,
		ByClass: make(map[string]Counters, len(s.byClass)),
		ByRoute: make(map[string]Counters, len(s.byRoute)),
	}
	for k, v := range s.byClass {
		out.ByClass[string(k)] = v
	}
	for k, v := range s.byRoute {
		out.ByRoute[k] = v
	}
	if s.trackKeys {
		out.ByKey = make(map[string]Counters, len(s.byKey))
		for k, v := range s.byKey {
			out.ByKey[k] = v
		}
	}
	return out
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}
