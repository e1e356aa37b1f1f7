// Package aging implements AgingFunction (spec.md §4.4): the retrieval-time
// age discount applied on top of a chunk's stored importance score.
// Grounded on the teacher's internal/decay exponential decay strategy,
// simplified to the single formula spec.md specifies instead of the
// teacher's three-strategy switch.
package aging

import (
	"math"
	"time"

	"memoria/internal/config"
)

// Function applies time-based decay to importance scores.
type Function struct {
	cfg config.AgingConfig
}

// New builds a Function from the configured decay rate and floor.
func New(cfg config.AgingConfig) *Function {
	return &Function{cfg: cfg}
}

// AgeFactor returns exp(-decay_rate * Δdays), floored at minimum_score, or
// 1.0 when aging is disabled.
func (f *Function) AgeFactor(ts, now time.Time) float64 {
	if !f.cfg.Enabled {
		return 1.0
	}
	days := now.Sub(ts).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	factor := math.Exp(-f.cfg.DecayRate * days)
	return math.Max(factor, f.cfg.MinimumScore)
}

// Apply discounts score by AgeFactor, floored at half the minimum score so
// aging never drives a chunk's contribution to exactly zero.
func (f *Function) Apply(score float64, ts, now time.Time) float64 {
	discounted := score * f.AgeFactor(ts, now)
	floor := f.cfg.MinimumScore / 2
	return math.Max(discounted, floor)
}

// NeedsRefresh reports whether a chunk's importance was scored long enough
// ago (in days) to warrant recomputation.
func (f *Function) NeedsRefresh(importanceScoredAt, now time.Time, thresholdDays float64) bool {
	if importanceScoredAt.IsZero() {
		return true
	}
	days := now.Sub(importanceScoredAt).Hours() / 24.0
	return days > thresholdDays
}
