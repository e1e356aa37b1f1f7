package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"memoria/internal/config"
	"memoria/internal/logging"

	"github.com/stretchr/testify/require"
)

// Since main() calls log.Fatalf on error, we test the testable parts
func TestMainSmoke(t *testing.T) {
	// Test if main can be called (basic smoke test)
	// We can't easily test main() directly due to log.Fatalf, but we can verify imports work

	// Set a valid environment to avoid config errors
	_ = os.Setenv("OPENAI_API_KEY", "test-key")
	_ = os.Setenv("CHROMA_ENDPOINT", "http://localhost:8000")

	// This is a basic test to ensure the package compiles and imports work
	// In a real scenario, you'd refactor main to be more testable
	if testing.Short() {
		t.Skip("Skipping main test in short mode")
	}
}

func TestBuildServerWiresEngineAndTools(t *testing.T) {
	cfg := config.DefaultConfig()
	mcpSrv, stop, err := buildServer(cfg, logging.NewNoOpLogger())
	require.NoError(t, err)
	require.NotNil(t, mcpSrv)
	defer stop()

	require.NotNil(t, mcpSrv.MCPServer())
	require.NotNil(t, mcpSrv.LifecycleHub())
}

func TestAdminRouterServesHealth(t *testing.T) {
	r := newAdminRouter()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "healthy")
}
