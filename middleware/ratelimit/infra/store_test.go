package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"risk-gateway/middleware/ratelimit/domain"
)

var apiRule = domain.Rule{Quota: 10, Window: 60 * time.Second}

func TestMemoryWindowStore_AdmitsUpToQuotaThenRejects(t *testing.T) {
	s := NewMemoryWindowStore()
	key := domain.Key{Identity: "10.0.0.1", Class: domain.ClassAPI}
	base := time.Unix(1_700_000_000, 0)

	for i := 0; i < 10; i++ {
		adm, err := s.Admit(context.Background(), key, apiRule, base.Add(time.Duration(i)*100*time.Millisecond))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !adm.Admitted || adm.Count != i+1 {
			t.Fatalf("request %d: expected admitted with count %d, got %+v", i+1, i+1, adm)
		}
	}

	adm, _ := s.Admit(context.Background(), key, apiRule, base.Add(time.Second))
	if adm.Admitted {
		t.Fatalf("expected 11th request to be rejected")
	}
	if adm.Count != 10 {
		t.Fatalf("rejected attempt must not be recorded, count=%d", adm.Count)
	}
}

func TestMemoryWindowStore_RecoversAfterWindow(t *testing.T) {
	s := NewMemoryWindowStore()
	key := domain.Key{Identity: "10.0.0.1", Class: domain.ClassAPI}
	base := time.Unix(1_700_000_000, 0)

	for i := 0; i < 10; i++ {
		_, _ = s.Admit(context.Background(), key, apiRule, base)
	}
	adm, _ := s.Admit(context.Background(), key, apiRule, base.Add(61*time.Second))
	if !adm.Admitted || adm.Count != 1 {
		t.Fatalf("expected window to be empty after 61s, got %+v", adm)
	}
}

func TestMemoryWindowStore_BoundaryTimestampStaysInside(t *testing.T) {
	s := NewMemoryWindowStore()
	key := domain.Key{Identity: "c", Class: domain.ClassAuth}
	rule := domain.Rule{Quota: 1, Window: time.Minute}
	base := time.Unix(1_700_000_000, 0)

	if adm, _ := s.Admit(context.Background(), key, rule, base); !adm.Admitted {
		t.Fatalf("expected first admission")
	}
	// exatamente now - window: ainda dentro da janela (comparação estrita)
	if adm, _ := s.Admit(context.Background(), key, rule, base.Add(time.Minute)); adm.Admitted {
		t.Fatalf("timestamp at the cutoff must not be evicted")
	}
	if adm, _ := s.Admit(context.Background(), key, rule, base.Add(time.Minute+time.Nanosecond)); !adm.Admitted {
		t.Fatalf("timestamp older than the cutoff must be evicted")
	}
}

func TestMemoryWindowStore_KeysAreIndependent(t *testing.T) {
	s := NewMemoryWindowStore()
	rule := domain.Rule{Quota: 1, Window: time.Minute}
	now := time.Unix(1_700_000_000, 0)

	a := domain.Key{Identity: "a", Class: domain.ClassAuth}
	_, _ = s.Admit(context.Background(), a, rule, now)
	if adm, _ := s.Admit(context.Background(), a, rule, now); adm.Admitted {
		t.Fatalf("expected a/auth exhausted")
	}
	if adm, _ := s.Admit(context.Background(), domain.Key{Identity: "a", Class: domain.ClassAPI}, rule, now); !adm.Admitted {
		t.Fatalf("expected a/api to have its own quota")
	}
	if adm, _ := s.Admit(context.Background(), domain.Key{Identity: "b", Class: domain.ClassAuth}, rule, now); !adm.Admitted {
		t.Fatalf("expected b/auth to have its own quota")
	}
}

func TestMemoryWindowStore_ConcurrentAdmissionNeverExceedsQuota(t *testing.T) {
	s := NewMemoryWindowStore()
	key := domain.Key{Identity: "burst", Class: domain.ClassAPI}
	rule := domain.Rule{Quota: 25, Window: time.Minute}
	now := time.Now()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			adm, _ := s.Admit(context.Background(), key, rule, now)
			if adm.Admitted {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := admitted.Load(); got != int64(rule.Quota) {
		t.Fatalf("expected exactly %d admissions, got %d", rule.Quota, got)
	}
}

func TestMemoryWindowStore_CleanupRemovesIdleEmptyWindows(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	s := NewMemoryWindowStore(WithIdleTTL(time.Minute), WithCleanupEvery(0), WithClock(clock))
	rule := domain.Rule{Quota: 2, Window: 10 * time.Second}

	_, _ = s.Admit(context.Background(), domain.Key{Identity: "old", Class: domain.ClassAPI}, rule, now.Add(-2*time.Minute))
	_, _ = s.Admit(context.Background(), domain.Key{Identity: "fresh", Class: domain.ClassAPI}, rule, now.Add(-time.Second))

	s.Cleanup()

	if got := s.Len(); got != 1 {
		t.Fatalf("expected only the fresh key to survive, got %d keys", got)
	}
	if got := s.Count(domain.Key{Identity: "fresh", Class: domain.ClassAPI}, now); got != 1 {
		t.Fatalf("expected fresh window to keep its timestamp, got %d", got)
	}
}

func TestMemoryWindowStore_CleanupKeepsActiveWindowEvenWhenIdleTTLIsShort(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryWindowStore(WithIdleTTL(time.Millisecond), WithClock(func() time.Time { return now }))
	key := domain.Key{Identity: "k", Class: domain.ClassAuth}
	rule := domain.Rule{Quota: 1, Window: time.Minute}

	_, _ = s.Admit(context.Background(), key, rule, now.Add(-30*time.Second))
	s.Cleanup()

	// a janela ainda tem um timestamp válido; remover a chave liberaria a cota
	if adm, _ := s.Admit(context.Background(), key, rule, now); adm.Admitted {
		t.Fatalf("cleanup must not reset a non-empty window")
	}
}

func TestMemoryWindowStore_MaxKeysEvictsLeastRecentlyUsed(t *testing.T) {
	s := NewMemoryWindowStore(WithShards(1), WithMaxKeys(2))
	rule := domain.Rule{Quota: 5, Window: time.Minute}
	now := time.Unix(1_700_000_000, 0)

	_, _ = s.Admit(context.Background(), domain.Key{Identity: "a", Class: domain.ClassAPI}, rule, now)
	_, _ = s.Admit(context.Background(), domain.Key{Identity: "b", Class: domain.ClassAPI}, rule, now.Add(time.Second))
	_, _ = s.Admit(context.Background(), domain.Key{Identity: "c", Class: domain.ClassAPI}, rule, now.Add(2*time.Second))

	if got := s.Len(); got != 2 {
		t.Fatalf("expected cap of 2 keys, got %d", got)
	}
	if got := s.Count(domain.Key{Identity: "a", Class: domain.ClassAPI}, now.Add(2*time.Second)); got != 0 {
		t.Fatalf("expected least recently used key to be evicted")
	}
}

func TestMemoryWindowStore_JanitorStopsWithContext(t *testing.T) {
	s := NewMemoryWindowStore(WithCleanupEvery(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	s.StartJanitor(ctx)
	cancel()
}
