package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/3cpo-dev/saltamt/internal/household"
)

func BenchmarkMetricsParallel(b *testing.B) {
	m := NewMetrics()
	b.RunParallel(func(pb *testing.PB) {
		n := 0
		for pb.Next() {
			switch n % 3 {
			case 0:
				m.RecordRequest(time.Millisecond)
			case 1:
				m.RecordCacheHit()
			default:
				_ = m.GetStats()
			}
			n++
		}
	})
}

func BenchmarkPlanBlocks(b *testing.B) {
	b.ReportAllocs()
	axes := []household.Axis{
		{Name: "employment_income", Max: 1_000_000, Count: 2001},
		{Name: "real_estate_taxes", Max: 100_000, Count: 20},
	}
	for i := 0; i < b.N; i++ {
		_ = planBlocks(axes, 401)
	}
}

// BenchmarkSingleCached measures a calculation answered from the store.
func BenchmarkSingleCached(b *testing.B) {
	store, err := NewStore(filepath.Join(b.TempDir(), "cache.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	c := NewCalculator(&fakeEngine{}, Options{Store: store})
	ctx := context.Background()
	if _, err := c.Single(ctx, testInput()); err != nil {
		b.Fatalf("warm cache: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Single(ctx, testInput()); err != nil {
			b.Fatalf("single: %v", err)
		}
	}
}

func BenchmarkGridChunked(b *testing.B) {
	b.ReportAllocs()
	c := NewCalculator(&fakeEngine{}, Options{MaxAxisCount: 50, Concurrency: 8})
	x := household.Axis{Name: "employment_income", Max: 500_000, Count: 100}
	y := household.Axis{Name: "real_estate_taxes", Max: 50_000, Count: 20}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Grid(ctx, testInput(), x, y); err != nil {
			b.Fatalf("grid: %v", err)
		}
	}
}
