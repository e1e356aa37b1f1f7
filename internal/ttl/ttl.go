// Package ttl implements TTLManager (spec.md §4.3): tier assignment and
// expiry arithmetic for chunk metadata.
package ttl

import (
	"math/rand"
	"sync"
	"time"

	"memoria/internal/config"
	"memoria/pkg/types"
)

const minTTL = 60 * time.Second

// Manager assigns TTL tiers from importance and computes concrete
// expiries with access/recency modifiers.
type Manager struct {
	cfg   config.LifecycleConfig
	order []string
	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds a Manager from the configured tier table. order fixes tier
// evaluation order from least to most permanent so ties at a boundary
// resolve predictably.
func New(cfg config.LifecycleConfig) *Manager {
	return &Manager{
		cfg:   cfg,
		order: []string{"high_frequency", "medium_frequency", "low_frequency", "static", "permanent"},
		rng:   rand.New(rand.NewSource(1)),
	}
}

// TierFor returns the TTL tier for an importance score.
func (m *Manager) TierFor(importance float64) types.TTLTier {
	for _, name := range m.order {
		tier := m.cfg.TTLTiers[name]
		if importance >= tier.MinImportance && importance <= tier.MaxImportance {
			return types.TTLTier(name)
		}
	}
	return types.TTLPermanent
}

// Assign computes the tier, ttl_seconds and absolute expiry for a newly
// scored chunk. Permanent tier returns a nil expiry.
func (m *Manager) Assign(importance float64, accessCount int, lastAccessed, now time.Time) (tier types.TTLTier, ttlSeconds int64, expiry *time.Time) {
	tier = m.TierFor(importance)
	if tier == types.TTLPermanent {
		return tier, 0, nil
	}

	row := m.cfg.TTLTiers[string(tier)]
	accessMultiplier := accessMultiplier(accessCount)
	recencyMultiplier := recencyMultiplier(lastAccessed, now)

	base := row.BaseTTL.Seconds() * accessMultiplier * recencyMultiplier
	jitter := m.jitter(row.Jitter)
	ttl := base + jitter
	if ttl < minTTL.Seconds() {
		ttl = minTTL.Seconds()
	}

	exp := now.Add(time.Duration(ttl) * time.Second)
	return tier, int64(ttl), &exp
}

func accessMultiplier(accessCount int) float64 {
	extra := accessCount - 5
	if extra < 0 {
		extra = 0
	}
	m := 1 + float64(extra)*0.1
	if m > 2.0 {
		return 2.0
	}
	return m
}

func recencyMultiplier(lastAccessed, now time.Time) float64 {
	if lastAccessed.IsZero() {
		return 1.0
	}
	age := now.Sub(lastAccessed)
	switch {
	case age <= 24*time.Hour:
		return 1.5
	case age > 7*24*time.Hour:
		return 0.7
	default:
		return 1.0
	}
}

// jitter draws from the shared *rand.Rand, which is not safe for concurrent
// use; Assign is called from both the ingest and update-importance paths,
// which run concurrently (spec.md §4.2), so the draw is mutex-guarded.
func (m *Manager) jitter(span time.Duration) float64 {
	if span <= 0 {
		return 0
	}
	s := span.Seconds()
	m.rngMu.Lock()
	r := m.rng.Float64()
	m.rngMu.Unlock()
	return (r*2 - 1) * s
}

// ShouldExpire mirrors types.ChunkMetadata.ShouldExpire, kept here too so
// callers that only hold tier/flag/expiry fields (not a full metadata
// struct) can reuse the same rule.
func ShouldExpire(permanentFlag bool, tier types.TTLTier, ttlExpiry *time.Time, now time.Time) bool {
	if permanentFlag || tier == types.TTLPermanent {
		return false
	}
	if ttlExpiry == nil {
		return false
	}
	return now.After(*ttlExpiry)
}
