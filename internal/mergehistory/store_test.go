package mergehistory

import (
	"context"
	"testing"
	"time"

	"memoria/internal/storage"
	"memoria/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndGet(t *testing.T) {
	ctx := context.Background()
	vs := storage.NewMemoryStore()
	s := New(vs, 1000)

	event := types.MergeEvent{
		MergeID:         "m1",
		Timestamp:       time.Now(),
		PrimaryDocument: "doc-a",
		MergedDocuments: []string{"doc-b"},
		SimilarityScores: map[string]float64{"doc-b": 0.97},
	}
	require.NoError(t, s.Append(ctx, event))

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "doc-a", got.PrimaryDocument)
}

func TestAppendPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	vs := storage.NewMemoryStore()
	s1 := New(vs, 1000)
	require.NoError(t, s1.Append(ctx, types.MergeEvent{MergeID: "m1", Timestamp: time.Now(), PrimaryDocument: "doc-a"}))

	s2 := New(vs, 1000)
	all, err := s2.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "m1")
}

func TestPruneOldestWhenOverCap(t *testing.T) {
	ctx := context.Background()
	vs := storage.NewMemoryStore()
	s := New(vs, 2)

	base := time.Now()
	require.NoError(t, s.Append(ctx, types.MergeEvent{MergeID: "old", Timestamp: base}))
	require.NoError(t, s.Append(ctx, types.MergeEvent{MergeID: "mid", Timestamp: base.Add(time.Hour)}))
	require.NoError(t, s.Append(ctx, types.MergeEvent{MergeID: "new", Timestamp: base.Add(2 * time.Hour)}))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	old, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, old)

	newest, err := s.Get(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, newest)
}
