package calibration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Calibrator caches ThresholdSets per dataset scope with stale-while-
// revalidate semantics: an expired entry is still served immediately while
// one goroutine recomputes in the background. Never returns an error — a
// failed computation degrades to the default set.
type Calibrator struct {
	source PopulationSource
	cache  sync.Map // map[string]*thresholdEntry
	ttl    time.Duration
	logger *zap.Logger
}

type thresholdEntry struct {
	set        *ThresholdSet
	expiresAt  time.Time
	refreshing atomic.Bool
}

// NewCalibrator creates a Calibrator over the given population source.
// A zero ttl means DefaultTTL.
func NewCalibrator(source PopulationSource, ttl time.Duration, logger *zap.Logger) *Calibrator {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Calibrator{
		source: source,
		ttl:    ttl,
		logger: logger,
	}
}

// Thresholds returns the ThresholdSet for a dataset scope, computing it on
// first use. Stale entries are returned as-is while a background refresh
// runs; only one goroutine refreshes per scope.
func (c *Calibrator) Thresholds(ctx context.Context, scope string) *ThresholdSet {
	if val, ok := c.cache.Load(scope); ok {
		entry := val.(*thresholdEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.set
		}
		if entry.refreshing.CompareAndSwap(false, true) {
			go c.refreshInBackground(scope)
		}
		return entry.set
	}
	return c.Refresh(ctx, scope)
}

// Refresh recomputes the scope's thresholds synchronously and swaps the
// cache entry. The previous snapshot stays readable until the swap.
func (c *Calibrator) Refresh(ctx context.Context, scope string) *ThresholdSet {
	set := c.computeForScope(ctx, scope)
	c.cache.Store(scope, &thresholdEntry{
		set:       set,
		expiresAt: time.Now().Add(c.ttl),
	})
	return set
}

func (c *Calibrator) refreshInBackground(scope string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.Refresh(ctx, scope)
}

func (c *Calibrator) computeForScope(ctx context.Context, scope string) *ThresholdSet {
	if c.source == nil {
		return DefaultThresholds()
	}
	snap, err := c.source.Population(ctx, scope)
	if err != nil {
		c.logger.Warn("population snapshot failed, using default thresholds",
			zap.String("scope", scope),
			zap.Error(err),
		)
		return DefaultThresholds()
	}
	return compute(snap, c.logger)
}
