package domain

import (
	"testing"
	"time"
)

func TestDefaultPolicy_Values(t *testing.T) {
	p := DefaultPolicy()
	want := map[EndpointClass]Rule{
		ClassAuth:    {10, time.Minute},
		ClassUpload:  {5, time.Minute},
		ClassAPI:     {200, time.Minute},
		ClassDefault: {100, time.Minute},
	}
	for class, rule := range want {
		if got := p.For(class); got != rule {
			t.Fatalf("%s: expected %+v, got %+v", class, rule, got)
		}
	}
}

func TestNewPolicy_OverridesAndValidates(t *testing.T) {
	p, err := NewPolicy(map[EndpointClass]Rule{ClassAPI: {Quota: 3, Window: time.Second}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.For(ClassAPI); got.Quota != 3 || got.Window != time.Second {
		t.Fatalf("expected override, got %+v", got)
	}
	if got := p.For(ClassAuth); got.Quota != 10 {
		t.Fatalf("expected auth default to survive, got %+v", got)
	}

	if _, err := NewPolicy(map[EndpointClass]Rule{ClassAPI: {Quota: 0, Window: time.Second}}); err == nil {
		t.Fatalf("expected error for zero quota")
	}
	if _, err := NewPolicy(map[EndpointClass]Rule{"admin": {Quota: 1, Window: time.Second}}); err == nil {
		t.Fatalf("expected error for unknown class")
	}
}

func TestPolicy_ZeroValueFallsBackToDefaults(t *testing.T) {
	var p Policy
	if got := p.For(ClassUpload); got.Quota != 5 {
		t.Fatalf("expected default upload rule, got %+v", got)
	}
	if got := p.MaxWindow(); got != time.Minute {
		t.Fatalf("expected max window 1m, got %s", got)
	}
}
