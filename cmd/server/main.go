// server is the memoria MCP server binary: it assembles the storage,
// embeddings, reranker, and engine layers from configuration and exposes
// them over stdio or HTTP JSON-RPC transport (spec.md §6-7).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"memoria/internal/config"
	"memoria/internal/embeddings"
	"memoria/internal/engine"
	"memoria/internal/logging"
	"memoria/internal/mcp"
	"memoria/internal/reranker"
	"memoria/internal/storage"

	"github.com/fatih/color"
	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/fredcamaral/gomcp-sdk/server"
	"github.com/fredcamaral/gomcp-sdk/transport"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
)

var (
	bannerColor = color.New(color.FgCyan, color.Bold)
	errorColor  = color.New(color.FgRed)
)

const defaultLocalOrigin = "http://localhost:2001"

func main() {
	var (
		mode = flag.String("mode", "stdio", "Server mode: stdio or http")
		addr = flag.String("addr", ":9080", "HTTP server address (when mode=http)")
	)
	flag.Parse()

	bannerColor.Println("memoria — hierarchical semantic memory engine")

	cfg, err := config.LoadConfig()
	if err != nil {
		errorColor.Printf("failed to load configuration: %v\n", err)
		log.Fatal(err)
	}

	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level)).WithComponent("server")

	mcpSrv, stop, err := buildServer(cfg, logger)
	if err != nil {
		errorColor.Printf("failed to build memoria server: %v\n", err)
		log.Fatal(err)
	}
	defer stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hubStop := make(chan struct{})
	go mcpSrv.LifecycleHub().Run(hubStop)
	defer close(hubStop)

	switch *mode {
	case "stdio":
		log.Printf("starting memoria MCP server in stdio mode")
		mcpSrv.MCPServer().SetTransport(transport.NewStdioTransport())
		if err := mcpSrv.MCPServer().Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("mcp server failed: %v", err)
		}

	case "http":
		log.Printf("starting memoria MCP server in http mode on %s", *addr)
		if err := startHTTPServer(ctx, mcpSrv, *addr); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("http server failed: %v", err)
		}

	default:
		log.Fatalf("invalid mode: %s. use 'stdio' or 'http'", *mode)
	}
}

// buildServer wires storage -> embeddings -> reranker -> engine -> mcp
// transport, mirroring the teacher's DI-container assembly order.
func buildServer(cfg *config.Config, logger logging.Logger) (*mcp.Server, func(), error) {
	vs, err := storage.New(cfg.VectorStore, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build vector store: %w", err)
	}

	embedSvc, err := embeddings.New(cfg.Embeddings)
	if err != nil {
		return nil, nil, fmt.Errorf("build embedding service: %w", err)
	}

	rerankSvc, err := reranker.New(cfg.Reranker, cfg.Reranker.Endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("build reranker: %w", err)
	}

	eng, err := engine.New(cfg, vs, embedSvc, rerankSvc, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build engine: %w", err)
	}

	if err := eng.Start(context.Background()); err != nil {
		logger.Warn("background maintenance did not start", "error", err)
	}

	mcpSrv := mcp.NewServer(cfg, vs, eng, logger)

	stop := func() {
		if err := eng.Stop(10); err != nil {
			logger.Warn("background maintenance failed to stop cleanly", "error", err)
		}
	}
	return mcpSrv, stop, nil
}

// startHTTPServer mounts two independent routers behind one listener,
// mirroring the teacher's dual-router split (internal/api/router.go): a chi
// router carries the JSON-RPC tool surface, a gorilla/mux router carries
// admin/health endpoints that don't belong to the MCP protocol.
func startHTTPServer(ctx context.Context, mcpSrv *mcp.Server, addr string) error {
	top := http.NewServeMux()
	top.Handle("/mcp", newToolRouter(mcpSrv.MCPServer()))
	top.Handle("/mcp/events", mcpSrv.LifecycleHub())
	top.Handle("/", newAdminRouter())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           top,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("memoria MCP server listening on http://localhost%s", addr)
		log.Printf("mcp endpoint: http://localhost%s/mcp", addr)
		log.Printf("health check: http://localhost%s/health", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx) //nolint:contextcheck // fresh context needed once the parent is cancelled
}

// newToolRouter builds the chi router fronting the JSON-RPC tool surface
// (SPEC_FULL.md §3), grounded on the teacher's internal/api/router.go
// (chi.NewRouter() plus chi's Recoverer/Logger middleware stack).
func newToolRouter(mcpServer *server.Server) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Post("/mcp", mcpHandler(mcpServer))
	r.Options("/mcp", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = defaultLocalOrigin
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		next.ServeHTTP(w, r)
	})
}

// mcpHandler decodes one JSON-RPC request and dispatches it to the MCP
// server, recovering from handler panics the way the teacher's own
// mcp-over-http bridge does.
func mcpHandler(mcpServer *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic in mcp handler: %v", err)
				log.Printf("stack trace: %s", debug.Stack())
				writeJSONRPCError(w, fmt.Sprintf("server panic: %v", err))
			}
		}()

		w.Header().Set("Content-Type", "application/json")

		var req protocol.JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		resp := mcpServer.HandleRequest(r.Context(), &req)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("error encoding response: %v", err)
		}
	}
}

func writeJSONRPCError(w http.ResponseWriter, message string) {
	errorResp := protocol.JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &protocol.JSONRPCError{
			Code:    -32603,
			Message: "Internal server error",
			Data:    message,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		log.Printf("failed to encode error response: %v", err)
	}
}

// newAdminRouter builds the gorilla/mux router carrying health/readiness
// endpoints, kept deliberately separate from the chi tool router (the
// teacher splits its health-check mux from its feature routers the same
// way in internal/api/router.go).
func newAdminRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/readiness", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/liveness", healthHandler).Methods(http.MethodGet)
	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"status":"healthy","server":"memoria"}`); err != nil {
		log.Printf("failed to write health check response: %v", err)
	}
}
