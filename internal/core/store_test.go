package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "saltamt.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreResultCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := s.CachedResult(ctx, "abc", time.Hour); err != nil || ok {
		t.Fatalf("expected miss, got %v %v", ok, err)
	}
	if err := s.PutResult(ctx, "abc", "policyengine", 2026, []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.PutResult(ctx, "abc", "policyengine", 2026, []byte(`{"a":2}`)); err != nil {
		t.Fatal(err)
	}
	body, ok, err := s.CachedResult(ctx, "abc", time.Hour)
	if err != nil || !ok || string(body) != `{"a":2}` {
		t.Fatalf("unexpected cache read %q %v %v", body, ok, err)
	}

	if _, err := s.db.Exec(`UPDATE engine_results SET created_at = ?`, time.Now().Add(-2*time.Hour).Unix()); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.CachedResult(ctx, "abc", time.Hour); ok {
		t.Fatalf("expired entry returned")
	}
	if _, ok, _ := s.CachedResult(ctx, "abc", 0); !ok {
		t.Fatalf("zero ttl should never expire")
	}
	n, err := s.PurgeResults(ctx, time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("purged %d, %v", n, err)
	}
}

func TestStoreImpacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := make([]ImpactRow, 0, 1200)
	for i := 0; i < 600; i++ {
		rows = append(rows,
			ImpactRow{ReformKey: "salt_uncapped", Baseline: "current_law", Year: 2026 + i%10, Metric: "budget_" + string(rune('a'+i%26)), Value: float64(i)},
			ImpactRow{ReformKey: "amt_repeal", Baseline: "current_policy", Year: 2026, Metric: "m" + string(rune('a'+i%26)), Value: 1},
		)
	}
	if err := s.PutImpacts(ctx, rows); err != nil {
		t.Fatalf("put impacts: %v", err)
	}
	if err := s.PutImpacts(ctx, []ImpactRow{{ReformKey: "salt_uncapped", Baseline: "current_law", Year: 2026, Metric: "budget_a", Value: -5}}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Impacts(ctx, "salt_uncapped", "current_law", 2026)
	if err != nil {
		t.Fatal(err)
	}
	if got["budget_a"] != -5 {
		t.Fatalf("upsert lost: %v", got)
	}
	n, err := s.ImpactCount(ctx)
	if err != nil || n == 0 {
		t.Fatalf("count %d %v", n, err)
	}
	none, err := s.Impacts(ctx, "unknown", "current_law", 2026)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no impacts, got %v %v", none, err)
	}
}
