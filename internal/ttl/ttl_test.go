package ttl

import (
	"testing"
	"time"

	"memoria/internal/config"
	"memoria/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.LifecycleConfig {
	return config.DefaultConfig().Lifecycle
}

func TestTierFor(t *testing.T) {
	m := New(testConfig())
	assert.Equal(t, types.TTLHighFrequency, m.TierFor(0.1))
	assert.Equal(t, types.TTLPermanent, m.TierFor(0.99))
}

func TestAssignPermanentHasNoExpiry(t *testing.T) {
	m := New(testConfig())
	tier, ttl, expiry := m.Assign(0.99, 0, time.Time{}, time.Now())
	assert.Equal(t, types.TTLPermanent, tier)
	assert.Equal(t, int64(0), ttl)
	assert.Nil(t, expiry)
}

func TestAssignFloorsAtMinTTL(t *testing.T) {
	m := New(testConfig())
	now := time.Now()
	_, ttl, expiry := m.Assign(0.1, 0, now.Add(-30*24*time.Hour), now)
	require.NotNil(t, expiry)
	assert.GreaterOrEqual(t, ttl, int64(60))
}

func TestShouldExpire(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	assert.True(t, ShouldExpire(false, types.TTLStatic, &past, now))
	assert.False(t, ShouldExpire(true, types.TTLStatic, &past, now))
	assert.False(t, ShouldExpire(false, types.TTLPermanent, &past, now))
}
