package calibration

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// stubPopulation is a test PopulationSource with a call counter.
type stubPopulation struct {
	snap  *PopulationSnapshot
	err   error
	calls atomic.Int32
}

func (s *stubPopulation) Population(_ context.Context, _ string) (*PopulationSnapshot, error) {
	s.calls.Add(1)
	return s.snap, s.err
}

func evenSnapshot() *PopulationSnapshot {
	snap := &PopulationSnapshot{Features: map[string][]float64{}}
	for i := 1; i <= 20; i++ {
		snap.Probabilities = append(snap.Probabilities, float64(i)*0.05) // 0.05..1.00
		snap.Tenures = append(snap.Tenures, float64(i))                  // 1..20
		snap.Features["compensation"] = append(snap.Features["compensation"], float64(30000+i*1000))
	}
	return snap
}

func TestCalibrator_EmpiricalThresholds(t *testing.T) {
	cal := NewCalibrator(&stubPopulation{snap: evenSnapshot()}, time.Hour, zap.NewNop())
	ts := cal.Thresholds(context.Background(), "global")

	if ts.Method != MethodEmpirical {
		t.Fatalf("method = %q, want %q", ts.Method, MethodEmpirical)
	}
	if ts.SampleSize != 20 {
		t.Fatalf("sample size = %d, want 20", ts.SampleSize)
	}
	if ts.HighThreshold != 0.75 {
		t.Fatalf("high threshold = %v, want 0.75", ts.HighThreshold)
	}
	if ts.MediumThreshold != 0.25 {
		t.Fatalf("medium threshold = %v, want 0.25", ts.MediumThreshold)
	}
	if ts.TenureQuintiles != [4]float64{4, 8, 12, 16} {
		t.Fatalf("tenure quintiles = %v", ts.TenureQuintiles)
	}
	if pct, ok := ts.FeaturePercentile("compensation", 31000); !ok || pct != 0 {
		t.Fatalf("lowest compensation percentile = %v (ok=%v), want 0", pct, ok)
	}
}

func TestCalibrator_InsufficientDataDefaults(t *testing.T) {
	snap := &PopulationSnapshot{Probabilities: []float64{0.1, 0.2, 0.3}}
	cal := NewCalibrator(&stubPopulation{snap: snap}, time.Hour, zap.NewNop())
	ts := cal.Thresholds(context.Background(), "global")

	if ts.Method != "default (insufficient data)" {
		t.Fatalf("method = %q", ts.Method)
	}
	if ts.HighThreshold != 0.60 || ts.MediumThreshold != 0.30 {
		t.Fatalf("thresholds = %v/%v, want 0.60/0.30", ts.HighThreshold, ts.MediumThreshold)
	}
}

func TestCalibrator_SourceErrorDefaults(t *testing.T) {
	cal := NewCalibrator(&stubPopulation{err: errors.New("db down")}, time.Hour, zap.NewNop())
	ts := cal.Thresholds(context.Background(), "global")
	if ts.Method != MethodDefault {
		t.Fatalf("method = %q, want default", ts.Method)
	}
}

func TestCalibrator_FreshCacheSkipsSource(t *testing.T) {
	source := &stubPopulation{snap: evenSnapshot()}
	cal := NewCalibrator(source, time.Hour, zap.NewNop())

	cal.Thresholds(context.Background(), "global")
	cal.Thresholds(context.Background(), "global")

	if calls := source.calls.Load(); calls != 1 {
		t.Fatalf("source calls = %d, want 1", calls)
	}
}

func TestCalibrator_ScopesAreIndependent(t *testing.T) {
	source := &stubPopulation{snap: evenSnapshot()}
	cal := NewCalibrator(source, time.Hour, zap.NewNop())

	cal.Thresholds(context.Background(), "engineering")
	cal.Thresholds(context.Background(), "sales")

	if calls := source.calls.Load(); calls != 2 {
		t.Fatalf("source calls = %d, want 2 (one per scope)", calls)
	}
}

func TestPercentileOf_Monotone(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = rng.Float64() * 200000
	}
	sort.Float64s(samples)

	prev := -1.0
	for v := 0.0; v <= 250000; v += 500 {
		pct := PercentileOf(samples, v)
		if pct < prev {
			t.Fatalf("percentile decreased: %v at value %v (prev %v)", pct, v, prev)
		}
		prev = pct
	}
}

func TestPercentile_NearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	tests := []struct {
		p    float64
		want float64
	}{
		{25, 1},
		{50, 2},
		{75, 3},
		{100, 4},
	}
	for _, tt := range tests {
		if got := Percentile(sorted, tt.p); got != tt.want {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("empty sample percentile = %v, want 0", got)
	}
}
