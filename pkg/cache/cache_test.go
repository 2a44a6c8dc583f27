package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_GetSet(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	if _, ok, err := m.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("Get on empty cache = ok %v, err %v", ok, err)
	}
	if err := m.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Errorf("Get = %q, %v, %v; want v, true, nil", v, ok, err)
	}
}

func TestMemory_TTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Set(ctx, "k", "v", time.Minute)
	now = now.Add(59 * time.Second)
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Error("entry expired too early")
	}
	now = now.Add(time.Second)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("entry should have expired")
	}
	if m.Len() != 0 {
		t.Errorf("expired entry not evicted, Len = %d", m.Len())
	}
}
