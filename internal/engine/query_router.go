package engine

import (
	"math"
	"regexp"
	"strings"

	"memoria/pkg/types"
)

// DedupStats is the subset of deduplication history the router consults
// when computing effective_k.
type DedupStats struct {
	DuplicatesRemoved int
	Processed         int
}

// Plan is the outcome of smart_query_routing: which tiers to search, in
// what order, the per-tier result cap, and the overall result budget.
type Plan struct {
	TierOrder     []types.CollectionType
	PerTierLimits []int
	EffectiveK    int
}

var (
	technicalTokenRe = regexp.MustCompile(`(?i)\b(error|bug|implementation|algorithm|function|class|method)\b`)
	identifierRe     = regexp.MustCompile(`[a-z]+[A-Z]|[A-Za-z]+_[A-Za-z]+`)
	dedupPatternRe   = regexp.MustCompile(`(?i)\b(config|setting|preference|option|api|endpoint|request|response|test|spec|mock|fixture)\b`)
)

// Router implements smart_query_routing: a query-importance heuristic that
// decides tier order, per-tier limits, and the effective result budget.
type Router struct{}

// NewRouter builds a stateless query router.
func NewRouter() *Router {
	return &Router{}
}

// QueryImportance scores a query 0..1 using the lexical heuristic.
func (r *Router) QueryImportance(query string) float64 {
	score := 0.5
	if technicalTokenRe.MatchString(query) {
		score += 0.2
	}
	if identifierRe.MatchString(query) {
		score += 0.1
	}
	if len(strings.Fields(query)) > 5 {
		score += 0.1
	}
	if dedupPatternRe.MatchString(query) {
		score += 0.1
	}
	// Every term is a multiple of 0.1; rounding removes float drift so a
	// full-bonus query reaches exactly 1.
	score = math.Round(score*10) / 10
	if score > 1 {
		score = 1
	}
	return score
}

// EffectiveK returns k unchanged when there are no stats or the duplicate
// rate is at most 0.3; above that it returns max(k, floor(0.8·k)), which
// for any non-negative k is again k.
func (r *Router) EffectiveK(k int, stats *DedupStats) int {
	if stats == nil || stats.Processed <= 0 {
		return k
	}
	rate := float64(stats.DuplicatesRemoved) / float64(stats.Processed)
	if rate <= 0.3 {
		return k
	}
	widened := int(math.Floor(float64(k) * 0.8))
	if widened > k {
		return widened
	}
	return k
}

// Plan computes tier order, per-tier limits, and effective k for query.
func (r *Router) Plan(query string, k int, stats *DedupStats) Plan {
	effectiveK := r.EffectiveK(k, stats)
	half := effectiveK / 2

	importance := r.QueryImportance(query)
	switch {
	case importance > 0.8:
		return Plan{
			TierOrder:     []types.CollectionType{types.CollectionLongTerm, types.CollectionShortTerm},
			PerTierLimits: []int{half + 1, half},
			EffectiveK:    effectiveK,
		}
	case importance > 0.5:
		return Plan{
			TierOrder:     []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm},
			PerTierLimits: []int{half, half},
			EffectiveK:    effectiveK,
		}
	default:
		return Plan{
			TierOrder:     []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm},
			PerTierLimits: []int{half + 1, half},
			EffectiveK:    effectiveK,
		}
	}
}

// DefaultPlan is used when smart routing is disabled or the caller pinned
// explicit collections: both tiers, equal split, unmodified k.
func DefaultPlan(k int) Plan {
	half := k / 2
	return Plan{
		TierOrder:     []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm},
		PerTierLimits: []int{half, k - half},
		EffectiveK:    k,
	}
}
