package mergehistory

import (
	"context"
	"testing"

	"memoria/internal/config"
	"memoria/internal/logging"
	"memoria/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresMirrorDisabledByDefault(t *testing.T) {
	mirror, err := NewPostgresMirror(config.DatabaseConfig{Enabled: false}, logging.NewNoOpLogger())
	require.NoError(t, err)
	assert.Nil(t, mirror)
}

func TestNilMirrorMirrorAndCloseAreNoOps(t *testing.T) {
	var mirror *PostgresMirror
	assert.NotPanics(t, func() {
		mirror.Mirror(context.Background(), types.MergeEvent{})
	})
	assert.NoError(t, mirror.Close())
}
