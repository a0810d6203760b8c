package infra

import (
	"context"
	"sync"
	"time"

	"risk-gateway/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 64

// MemoryWindowStore é a implementação em memória da janela deslizante.
//
// As chaves são distribuídas em shards (xxhash) e cada shard tem seu próprio
// mutex: chaves diferentes raramente disputam o mesmo lock, e a sequência
// evict/contagem/append de uma chave é atômica.
//
// Cada janela é um ring buffer com capacidade = quota, então uma chave nunca
// guarda mais que quota timestamps. Chaves ociosas são removidas pelo janitor.
type MemoryWindowStore struct {
	shards       []*windowShard
	idleTTL      time.Duration
	cleanupEvery time.Duration
	maxKeys      int
	now          func() time.Time
}

type windowShard struct {
	mu      sync.Mutex
	windows map[domain.Key]*window
}

type MemoryStoreOption func(*MemoryWindowStore)

func WithIdleTTL(d time.Duration) MemoryStoreOption {
	return func(s *MemoryWindowStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryWindowStore) { s.cleanupEvery = d }
}

// WithMaxKeys limita o número de chaves rastreadas (0 = sem limite).
// O limite é dividido igualmente entre os shards.
func WithMaxKeys(n int) MemoryStoreOption {
	return func(s *MemoryWindowStore) { s.maxKeys = n }
}

func WithShards(n int) MemoryStoreOption {
	return func(s *MemoryWindowStore) {
		if n > 0 {
			s.shards = make([]*windowShard, n)
		}
	}
}

// WithClock troca o relógio usado pelo Cleanup (útil em testes).
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryWindowStore) { s.now = now }
}

func NewMemoryWindowStore(opts ...MemoryStoreOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		shards:       make([]*windowShard, defaultShards),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.shards {
		s.shards[i] = &windowShard{windows: make(map[domain.Key]*window)}
	}
	return s
}

func (s *MemoryWindowStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Admit implementa domain.WindowStore.
func (s *MemoryWindowStore) Admit(_ context.Context, key domain.Key, rule domain.Rule, now time.Time) (domain.Admission, error) {
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok {
		if limit := s.shardLimit(); limit > 0 && len(sh.windows) >= limit {
			sh.makeRoom(now, limit)
		}
		w = newWindow(rule)
		sh.windows[key] = w
	}
	w.configure(rule)
	w.evict(now.Add(-rule.Window))
	w.lastSeen = now

	if w.count >= rule.Quota {
		return domain.Admission{Admitted: false, Count: w.count}, nil
	}
	w.push(now)
	return domain.Admission{Admitted: true, Count: w.count}, nil
}

// Count devolve quantas requisições estão registradas na janela da chave em now.
func (s *MemoryWindowStore) Count(key domain.Key, now time.Time) int {
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok {
		return 0
	}
	w.evict(now.Add(-w.span))
	return w.count
}

// Len devolve o número de chaves rastreadas.
func (s *MemoryWindowStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.windows)
		sh.mu.Unlock()
	}
	return n
}

// Cleanup remove chaves cuja janela está vazia e que não foram vistas há
// mais de idleTTL. Uma janela vazia é indistinguível de uma chave nova, então
// a remoção não altera o comportamento observável.
func (s *MemoryWindowStore) Cleanup() {
	now := s.now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.sweep(now, now.Add(-s.idleTTL))
		sh.mu.Unlock()
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryWindowStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context no janitor.
type DoneContext interface {
	Done() <-chan struct{}
}

func (s *MemoryWindowStore) shardFor(key domain.Key) *windowShard {
	h := xxhash.Sum64String(key.String())
	return s.shards[h%uint64(len(s.shards))]
}

func (s *MemoryWindowStore) shardLimit() int {
	if s.maxKeys <= 0 {
		return 0
	}
	per := (s.maxKeys + len(s.shards) - 1) / len(s.shards)
	if per < 1 {
		per = 1
	}
	return per
}

// sweep remove janelas vazias vistas antes de idleCutoff. Chamar com mu travado.
func (sh *windowShard) sweep(now, idleCutoff time.Time) {
	for k, w := range sh.windows {
		w.evict(now.Add(-w.span))
		if w.count == 0 && w.lastSeen.Before(idleCutoff) {
			delete(sh.windows, k)
		}
	}
}

// makeRoom abre espaço para uma chave nova: primeiro descarta qualquer janela
// vazia; se ainda estiver cheio, remove a chave usada há mais tempo (LRU).
func (sh *windowShard) makeRoom(now time.Time, limit int) {
	sh.sweep(now, now.Add(time.Nanosecond))
	if len(sh.windows) < limit {
		return
	}

	var (
		oldestKey domain.Key
		oldest    time.Time
		found     bool
	)
	for k, w := range sh.windows {
		if !found || w.lastSeen.Before(oldest) {
			oldestKey, oldest, found = k, w.lastSeen, true
		}
	}
	if found {
		delete(sh.windows, oldestKey)
	}
}
