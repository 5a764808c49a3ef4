// Package calibration computes data-driven thresholds from the live subject
// population: risk high/medium cut points from the ML probability
// distribution, tenure quintile boundaries, and per-feature percentile
// lookups. Results are cached per dataset scope and replaced wholesale on
// refresh, never mutated.
package calibration

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/luminahr/insight/services/risk_engine/internal/domain"
)

const (
	// minSamples is the floor below which calibration falls back to defaults.
	minSamples = 10

	// DefaultTTL is how long a computed ThresholdSet stays fresh.
	DefaultTTL = 6 * time.Hour

	// MethodEmpirical tags threshold sets computed from live data.
	MethodEmpirical = "empirical percentile"
	// MethodDefault tags the fixed fallback set.
	MethodDefault = "default (insufficient data)"
)

// ThresholdSet is an immutable calibration snapshot.
type ThresholdSet struct {
	HighThreshold   float64
	MediumThreshold float64
	TenureQuintiles [4]float64 // 20/40/60/80th percentile tenure boundaries
	Method          string
	SampleSize      int
	ComputedAt      time.Time

	// featureSamples holds sorted observations per feature name for
	// percentile lookups. Nil on the default set.
	featureSamples map[string][]float64
}

// FeaturePercentile returns the percentile rank (0–100) of value within the
// calibrated distribution for the named feature. ok is false when the
// feature was not part of the snapshot.
func (t *ThresholdSet) FeaturePercentile(feature string, value float64) (float64, bool) {
	samples, found := t.featureSamples[feature]
	if !found || len(samples) == 0 {
		return 0, false
	}
	return PercentileOf(samples, value), true
}

// PopulationSnapshot is the raw material for one calibration pass.
type PopulationSnapshot struct {
	Probabilities []float64
	Tenures       []float64
	Features      map[string][]float64
}

// PopulationSource supplies population snapshots per dataset scope.
type PopulationSource interface {
	Population(ctx context.Context, scope string) (*PopulationSnapshot, error)
}

// DefaultThresholds returns the fixed fallback used when fewer than ten
// samples are available or the population source is unreachable.
func DefaultThresholds() *ThresholdSet {
	return &ThresholdSet{
		HighThreshold:   0.60,
		MediumThreshold: 0.30,
		TenureQuintiles: [4]float64{1, 3, 6, 10},
		Method:          MethodDefault,
		ComputedAt:      time.Now(),
	}
}

// compute builds a ThresholdSet from a snapshot. Returns the default set
// when the probability sample is too small.
func compute(snap *PopulationSnapshot, logger *zap.Logger) *ThresholdSet {
	if snap == nil || len(snap.Probabilities) < minSamples {
		n := 0
		if snap != nil {
			n = len(snap.Probabilities)
		}
		logger.Warn("calibration sample too small, using defaults",
			zap.Int("samples", n),
			zap.Int("required", minSamples),
			zap.Error(domain.ErrInsufficientData),
		)
		ts := DefaultThresholds()
		ts.SampleSize = n
		return ts
	}

	probs := append([]float64(nil), snap.Probabilities...)
	sort.Float64s(probs)

	ts := &ThresholdSet{
		HighThreshold:   Percentile(probs, 75),
		MediumThreshold: Percentile(probs, 25),
		Method:          MethodEmpirical,
		SampleSize:      len(probs),
		ComputedAt:      time.Now(),
		featureSamples:  make(map[string][]float64, len(snap.Features)+1),
	}

	if len(snap.Tenures) > 0 {
		tenures := append([]float64(nil), snap.Tenures...)
		sort.Float64s(tenures)
		ts.TenureQuintiles = [4]float64{
			Percentile(tenures, 20),
			Percentile(tenures, 40),
			Percentile(tenures, 60),
			Percentile(tenures, 80),
		}
		ts.featureSamples["tenure"] = tenures
	} else {
		ts.TenureQuintiles = DefaultThresholds().TenureQuintiles
	}

	for name, values := range snap.Features {
		if len(values) == 0 {
			continue
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		ts.featureSamples[name] = sorted
	}

	return ts
}

// Percentile returns the nearest-rank p-th percentile of a sorted sample.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// PercentileOf returns the percentile rank (0–100) of value within a sorted
// sample: the fraction of observations strictly below it. Ties do not raise
// the rank, so the result is monotone non-decreasing in value.
func PercentileOf(sorted []float64, value float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	below := sort.SearchFloat64s(sorted, value)
	return 100 * float64(below) / float64(len(sorted))
}
