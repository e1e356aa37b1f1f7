package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitShortContentSingleChunk(t *testing.T) {
	s := NewService(Config{ChunkSize: 1000, ChunkOverlap: 50})
	got := s.Split("hello world")
	assert.Equal(t, []string{"hello world"}, got)
}

func TestSplitLongContentMultipleChunks(t *testing.T) {
	s := NewService(Config{ChunkSize: 50, ChunkOverlap: 10, Language: LanguagePlain})
	content := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 10)
	chunks := s.Split(content)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 50+10)
	}
}

func TestSplitEmptyContent(t *testing.T) {
	s := NewService(Config{ChunkSize: 10})
	assert.Nil(t, s.Split(""))
}

func TestSplitAppliesDefaults(t *testing.T) {
	s := NewService(Config{})
	assert.Equal(t, 1000, s.cfg.ChunkSize)
	assert.Equal(t, LanguagePlain, s.cfg.Language)
}
