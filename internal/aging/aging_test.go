package aging

import (
	"testing"
	"time"

	"memoria/internal/config"

	"github.com/stretchr/testify/assert"
)

func testConfig() config.AgingConfig {
	return config.AgingConfig{Enabled: true, DecayRate: 0.1, MinimumScore: 0.05, RefreshThresholdDays: 7}
}

func TestAgeFactorDisabled(t *testing.T) {
	f := New(config.AgingConfig{Enabled: false})
	assert.Equal(t, 1.0, f.AgeFactor(time.Now().Add(-30*24*time.Hour), time.Now()))
}

func TestAgeFactorFloors(t *testing.T) {
	f := New(testConfig())
	factor := f.AgeFactor(time.Now().Add(-365*24*time.Hour), time.Now())
	assert.Equal(t, testConfig().MinimumScore, factor)
}

func TestApplyFloor(t *testing.T) {
	f := New(testConfig())
	score := f.Apply(0.01, time.Now().Add(-365*24*time.Hour), time.Now())
	assert.GreaterOrEqual(t, score, testConfig().MinimumScore/2)
}

func TestNeedsRefresh(t *testing.T) {
	f := New(testConfig())
	now := time.Now()
	assert.True(t, f.NeedsRefresh(now.Add(-10*24*time.Hour), now, 7))
	assert.False(t, f.NeedsRefresh(now.Add(-1*24*time.Hour), now, 7))
	assert.True(t, f.NeedsRefresh(time.Time{}, now, 7))
}
