package scoring

import (
	"testing"
	"time"

	"memoria/internal/config"

	"github.com/stretchr/testify/assert"
)

func testConfig() config.ScoringConfig {
	return config.ScoringConfig{
		LengthNormalization: 100,
		MaxLengthScore:      0.3,
		Patterns: []config.PatternConfig{
			{Name: "technical", Keywords: []string{"error", "bug"}, Bonus: 0.2, MatchMode: "any"},
			{Name: "strict", Keywords: []string{"foo", "bar"}, Bonus: 0.1, MatchMode: "all"},
		},
		PermanenceBoosts:        map[string]float64{"critical": 0.9},
		ExplicitPermanenceBoost: 0.25,
		NonImportantCap:         0.94,
		WeightSemantic:          0.45,
		WeightRecency:           0.2,
		WeightFrequency:         0.15,
		WeightImportance:        0.2,
		RecencyDecayConstant:    86400,
		MaxAccessCount:          20,
	}
}

func TestCalculateLengthAndPattern(t *testing.T) {
	s := New(testConfig())
	score := s.Calculate("this has a bug in it", nil, nil)
	assert.Greater(t, score, 0.2)
}

func TestCalculateAllModeRequiresEverything(t *testing.T) {
	s := New(testConfig())
	partial := s.Calculate("only foo here", nil, nil)
	full := s.Calculate("foo and bar both here", nil, nil)
	assert.Greater(t, full, partial)
}

func TestCalculateNonImportantCap(t *testing.T) {
	s := New(testConfig())
	score := s.Calculate("critical critical critical production security vulnerability", nil, map[string]interface{}{"is_important": false})
	assert.LessOrEqual(t, score, 0.94)
}

func TestCalculateExplicitPermanenceRequest(t *testing.T) {
	s := New(testConfig())
	withoutFlag := s.Calculate("hi", nil, nil)
	withFlag := s.Calculate("hi", nil, map[string]interface{}{"explicit_permanence_request": true})
	assert.Greater(t, withFlag, withoutFlag)
}

func TestRetrievalScore(t *testing.T) {
	s := New(testConfig())
	now := time.Now()
	score := s.RetrievalScore(RetrievalInput{
		Distance: 0.1, LastAccess: now, Now: now, AccessCount: 20, Importance: 1.0,
	})
	assert.Greater(t, score, 0.9)
}
