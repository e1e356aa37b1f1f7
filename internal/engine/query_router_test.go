package engine

import (
	"testing"

	"memoria/pkg/types"

	"github.com/stretchr/testify/assert"
)

func TestQueryImportanceBaseline(t *testing.T) {
	r := NewRouter()
	assert.Equal(t, 0.5, r.QueryImportance("cats"))
}

func TestQueryImportanceAccumulatesBonusesAndCaps(t *testing.T) {
	r := NewRouter()
	score := r.QueryImportance("error in getUserConfig implementation with request handling and response testing")
	assert.Equal(t, 1.0, score)
}

func TestQueryImportanceTechnicalTokenBonus(t *testing.T) {
	r := NewRouter()
	assert.InDelta(t, 0.7, r.QueryImportance("bug report"), 1e-9)
}

func TestEffectiveKKeepsKOnHighDuplicateRate(t *testing.T) {
	r := NewRouter()
	k := r.EffectiveK(10, &DedupStats{DuplicatesRemoved: 40, Processed: 100})
	assert.Equal(t, 10, k)

	k = r.EffectiveK(10, nil)
	assert.Equal(t, 10, k)
}

func TestPlanHighImportanceRoutesLongTermFirst(t *testing.T) {
	r := NewRouter()
	plan := r.Plan("error getUserById config implementation test other words here", 10, nil)
	assert.Equal(t, []types.CollectionType{types.CollectionLongTerm, types.CollectionShortTerm}, plan.TierOrder)
	assert.Equal(t, []int{6, 5}, plan.PerTierLimits)
}

func TestPlanMidImportanceEqualSplit(t *testing.T) {
	r := NewRouter()
	plan := r.Plan("bug", 10, nil)
	assert.Equal(t, []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm}, plan.TierOrder)
	assert.Equal(t, []int{5, 5}, plan.PerTierLimits)
}

func TestPlanLowImportanceShortTermFirst(t *testing.T) {
	r := NewRouter()
	plan := r.Plan("cats", 10, nil)
	assert.Equal(t, []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm}, plan.TierOrder)
	assert.Equal(t, []int{6, 5}, plan.PerTierLimits)
}

func TestDefaultPlanEqualSplit(t *testing.T) {
	plan := DefaultPlan(9)
	assert.Equal(t, []int{4, 5}, plan.PerTierLimits)
	assert.Equal(t, 9, plan.EffectiveK)
}
