package engine

import (
	"context"
	"testing"
	"time"

	"memoria/internal/config"
	"memoria/internal/logging"
	"memoria/internal/storage"
	"memoria/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLifecycleConfig() config.LifecycleConfig {
	return config.LifecycleConfig{
		TTLTiers: map[string]config.TTLTierConfig{
			"high_frequency":   {MinImportance: 0, MaxImportance: 0.3, BaseTTL: 300 * time.Second},
			"medium_frequency": {MinImportance: 0.3, MaxImportance: 0.5, BaseTTL: 3600 * time.Second},
			"low_frequency":    {MinImportance: 0.5, MaxImportance: 0.7, BaseTTL: 86400 * time.Second},
			"static":           {MinImportance: 0.7, MaxImportance: 0.95, BaseTTL: 604800 * time.Second},
			"permanent":        {MinImportance: 0.95, MaxImportance: 1.0},
		},
		Aging: config.AgingConfig{Enabled: true, DecayRate: 0.1, MinimumScore: 0.05, RefreshThresholdDays: 7},
		Maintenance: config.MaintenanceCadenceConfig{
			CleanupExpired:  time.Hour,
			StatsSnapshot:   6 * time.Hour,
			AgingRefresh:    24 * time.Hour,
			DeepMaintenance: 168 * time.Hour,
			WorkerSleep:     5 * time.Minute,
		},
	}
}

func TestProcessDocumentLifecycleAssignsTierFromImportance(t *testing.T) {
	vs := storage.NewMemoryStore()
	lc := NewLifecycleController(testLifecycleConfig(), vs, logging.NewNoOpLogger())

	importance, tier, ttlSeconds, expiry, permanent, reason := lc.ProcessDocumentLifecycle("content", nil, 0.4, time.Now())
	assert.Equal(t, 0.4, importance)
	assert.Equal(t, types.TTLMediumFrequency, tier)
	assert.False(t, permanent)
	assert.Empty(t, reason)
	assert.Greater(t, ttlSeconds, int64(0))
	assert.NotNil(t, expiry)
}

func TestProcessDocumentLifecycleCriticalOverride(t *testing.T) {
	vs := storage.NewMemoryStore()
	lc := NewLifecycleController(testLifecycleConfig(), vs, logging.NewNoOpLogger())

	importance, tier, ttlSeconds, expiry, permanent, reason := lc.ProcessDocumentLifecycle(
		"content", map[string]interface{}{"permanence_flag": "critical"}, 0.2, time.Now())
	assert.GreaterOrEqual(t, importance, 0.95)
	assert.Equal(t, types.TTLPermanent, tier)
	assert.True(t, permanent)
	assert.Equal(t, "user_request", reason)
	assert.Equal(t, int64(0), ttlSeconds)
	assert.Nil(t, expiry)
}

func TestCleanupExpiredRemovesOnlyExpiredChunks(t *testing.T) {
	vs := storage.NewMemoryStore()
	lc := NewLifecycleController(testLifecycleConfig(), vs, logging.NewNoOpLogger())
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	expired := &types.Chunk{ID: "c1", Metadata: types.ChunkMetadata{DocumentID: "d1", ChunkIndex: 0, TotalChunks: 1, DocumentStart: true, DocumentEnd: true, TTLExpiry: &past}}
	alive := &types.Chunk{ID: "c2", Metadata: types.ChunkMetadata{DocumentID: "d2", ChunkIndex: 0, TotalChunks: 1, DocumentStart: true, DocumentEnd: true, TTLExpiry: &future}}
	require.NoError(t, vs.Store(ctx, types.CollectionShortTerm, expired))
	require.NoError(t, vs.Store(ctx, types.CollectionShortTerm, alive))

	removed, err := lc.CleanupExpired(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	remaining, err := vs.CountByCollection(ctx, types.CollectionShortTerm)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestLifecycleStartStopIsIdempotent(t *testing.T) {
	vs := storage.NewMemoryStore()
	cfg := testLifecycleConfig()
	cfg.Maintenance.WorkerSleep = 10 * time.Millisecond
	lc := NewLifecycleController(cfg, vs, logging.NewNoOpLogger())
	ctx := context.Background()

	require.NoError(t, lc.Start(ctx))
	require.NoError(t, lc.Start(ctx))
	require.NoError(t, lc.Stop(time.Second))
	require.NoError(t, lc.Stop(time.Second))
}
