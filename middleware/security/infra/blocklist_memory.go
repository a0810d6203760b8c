package infra

import (
	"sort"
	"sync"

	"risk-gateway/middleware/security/domain"
)

// MemoryBlockList é um conjunto protegido por RWMutex: leituras concorrentes
// não disputam entre si, escritas (raras) são exclusivas.
type MemoryBlockList struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

var _ domain.BlockList = (*MemoryBlockList)(nil)

func NewMemoryBlockList(initial ...string) *MemoryBlockList {
	b := &MemoryBlockList{ids: make(map[string]struct{}, len(initial))}
	for _, id := range initial {
		if norm, err := domain.NormalizeIdentity(id); err == nil {
			b.ids[norm] = struct{}{}
		}
	}
	return b
}

func (b *MemoryBlockList) Contains(identity string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.ids[identity]
	return ok
}

func (b *MemoryBlockList) Block(identity string) error {
	id, err := domain.NormalizeIdentity(identity)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.ids[id] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlockList) Unblock(identity string) error {
	id, err := domain.NormalizeIdentity(identity)
	if err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.ids, id)
	b.mu.Unlock()
	return nil
}

// List devolve as identidades bloqueadas em ordem.
func (b *MemoryBlockList) List() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.ids))
	for id := range b.ids {
		out = append(out, id)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Replace troca o conteúdo inteiro de uma vez (usado no reload do arquivo).
func (b *MemoryBlockList) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if norm, err := domain.NormalizeIdentity(id); err == nil {
			next[norm] = struct{}{}
		}
	}
	b.mu.Lock()
	b.ids = next
	b.mu.Unlock()
}
