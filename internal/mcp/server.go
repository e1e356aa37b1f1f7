// Package mcp wires the engine facade to the external JSON-RPC tool surface
// (spec.md §6): one gomcp-sdk server, sixteen registered tools, each
// handler thin enough to just translate params into an engine call and the
// result back into a JSON-able map. Grounded on the teacher's
// internal/mcp/server.go (NewMemoryServer/registerTools/AddTool shape),
// adapted from its 41-legacy/9-consolidated dual registration down to the
// single fixed tool set this engine exposes.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/fredcamaral/gomcp-sdk/server"

	"memoria/internal/config"
	"memoria/internal/engine"
	"memoria/internal/engineerr"
	"memoria/internal/logging"
	"memoria/internal/storage"
)

// Server is the transport-facing facade: one gomcp-sdk server plus the
// engine and storage handles its tool handlers call into directly (the
// engine facade has no single field exposing VectorStore, and several
// stats tools need it raw).
type Server struct {
	cfg       *config.Config
	vs        storage.VectorStore
	eng       *engine.Engine
	logger    logging.Logger
	mcpServer *server.Server
	hub       *LifecycleHub
}

// NewServer builds the MCP transport over an already-constructed Engine and
// registers every tool from spec.md §6.
func NewServer(cfg *config.Config, vs storage.VectorStore, eng *engine.Engine, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	s := &Server{
		cfg:       cfg,
		vs:        vs,
		eng:       eng,
		logger:    logger.WithComponent("mcp"),
		mcpServer: mcpsdk.NewServer("memoria", "1.0.0"),
		hub:       NewLifecycleHub(),
	}
	s.registerTools()
	if eng.Lifecycle != nil {
		eng.Lifecycle.OnEvent(s.hub.Broadcast)
	}
	return s
}

// MCPServer exposes the underlying gomcp-sdk server for transport wiring
// and tests (mirrors the teacher's GetMCPServer accessor).
func (s *Server) MCPServer() *server.Server {
	return s.mcpServer
}

// LifecycleHub exposes the websocket hub broadcasting lifecycle events, so
// cmd/server can mount it as an HTTP route.
func (s *Server) LifecycleHub() *LifecycleHub {
	return s.hub
}

// toolError maps an engineerr.Error's Kind to the JSON-RPC code range
// spec.md §7 reserves for it. Non-engine errors fall back to the generic
// tool-execution code. gomcp-sdk's handleToolsCall wraps handler errors as
// a ToolCallResult with IsError set rather than a protocol-level error, so
// this is surfaced through the message text; the code is recorded in the
// wrapped message for callers that inspect it.
func toolError(err error) error {
	if err == nil {
		return nil
	}
	kind := engineerr.KindOf(err)
	return fmt.Errorf("[%d] %s", engineerr.JSONRPCCode(kind), err.Error())
}

func (s *Server) addTool(name, description string, schema map[string]interface{}, handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)) {
	s.mcpServer.AddTool(mcpsdk.NewTool(name, description, schema), protocol.ToolHandlerFunc(handler))
}

// registerTools registers the sixteen tools from spec.md §6.
func (s *Server) registerTools() {
	s.addTool("add_document",
		"Ingest a document: scores importance, routes to short_term or long_term, chunks, deduplicates, and persists.",
		mcpsdk.ObjectSchema("add_document parameters", map[string]interface{}{
			"content":     mcpsdk.StringParam("Document text to ingest", true),
			"metadata":    map[string]interface{}{"type": "object", "description": "Arbitrary caller metadata, flattened to scalars at the storage boundary"},
			"context":     map[string]interface{}{"type": "object", "description": "Scoring context (e.g. preserved_importance)"},
			"language":    mcpsdk.StringParam("Source language hint for chunking (source, markup, or plain)", false),
			"memory_type": mcpsdk.StringParam("auto, short_term, or long_term", false),
		}, []string{"content"}),
		s.handleAddDocument)

	s.addTool("query_documents",
		"Search across short_term and long_term memory with smart tier routing, reranking, and related-context enrichment.",
		mcpsdk.ObjectSchema("query_documents parameters", map[string]interface{}{
			"query":             mcpsdk.StringParam("Natural language query", true),
			"collections":       mcpsdk.ArraySchema("Restrict to specific tiers (short_term, long_term)", map[string]interface{}{"type": "string"}),
			"limit":             mcpsdk.NumberParam("Maximum hits to return (default 5)", false),
			"use_reranker":      mcpsdk.BooleanParam("Apply cross-encoder/lexical reranking", false),
			"use_smart_routing": mcpsdk.BooleanParam("Use query-importance-based tier routing", false),
		}, []string{"query"}),
		s.handleQueryDocuments)

	s.addTool("query_permanent_documents",
		"Search only documents that have been marked permanent (TTL tier permanent).",
		mcpsdk.ObjectSchema("query_permanent_documents parameters", map[string]interface{}{
			"query": mcpsdk.StringParam("Natural language query", true),
			"limit": mcpsdk.NumberParam("Maximum hits to return (default 5)", false),
		}, []string{"query"}),
		s.handleQueryPermanentDocuments)

	s.addTool("delete_document",
		"Delete every chunk of a document and drop its relationship-cache entries. Requires confirm=true.",
		mcpsdk.ObjectSchema("delete_document parameters", map[string]interface{}{
			"document_id": mcpsdk.StringParam("Document id to delete", true),
			"confirm":     mcpsdk.BooleanParam("Must be true, or the deletion is rejected", false),
		}, []string{"document_id"}),
		s.handleDeleteDocument)

	s.addTool("demote_importance",
		"Lower a document's importance score, recomputing its TTL tier accordingly.",
		mcpsdk.ObjectSchema("demote_importance parameters", map[string]interface{}{
			"document_id":    mcpsdk.StringParam("Document id to demote", true),
			"new_importance": mcpsdk.NumberParam("New importance score in [0,0.94]; rejected if >= 0.95; a score above the current one is applied and logged as a warning", true),
			"reason":         mcpsdk.StringParam("Why the document is being demoted", false),
		}, []string{"document_id", "new_importance"}),
		s.handleDemoteImportance)

	s.addTool("update_document",
		"Replace a document's content: deletes the existing chunks and re-ingests the new content.",
		mcpsdk.ObjectSchema("update_document parameters", map[string]interface{}{
			"document_id":         mcpsdk.StringParam("Document id to update", true),
			"content":             mcpsdk.StringParam("Replacement content, at least 10 characters", true),
			"metadata":            map[string]interface{}{"type": "object", "description": "Replacement metadata"},
			"preserve_importance": mcpsdk.BooleanParam("Carry the old importance score into the new document's scoring context", false),
		}, []string{"document_id", "content"}),
		s.handleUpdateDocument)

	s.addTool("get_memory_stats",
		"Report chunk counts and age range per collection tier.",
		mcpsdk.ObjectSchema("get_memory_stats parameters", map[string]interface{}{}, nil),
		s.handleGetMemoryStats)

	s.addTool("get_lifecycle_stats",
		"Report the lifecycle controller's last completed cadence tasks (cleanup, aging refresh, deep maintenance).",
		mcpsdk.ObjectSchema("get_lifecycle_stats parameters", map[string]interface{}{}, nil),
		s.handleGetLifecycleStats)

	s.addTool("get_permanence_stats",
		"Report how many chunks/documents per tier are marked permanent, and why.",
		mcpsdk.ObjectSchema("get_permanence_stats parameters", map[string]interface{}{}, nil),
		s.handleGetPermanenceStats)

	s.addTool("get_deduplication_stats",
		"Report the size of the merge-history log and recent dedup touch rate from the query monitor.",
		mcpsdk.ObjectSchema("get_deduplication_stats parameters", map[string]interface{}{}, nil),
		s.handleGetDeduplicationStats)

	s.addTool("preview_duplicates",
		"Dry-run the batch dedup pass: list candidate duplicate pairs above the similarity threshold without merging.",
		mcpsdk.ObjectSchema("preview_duplicates parameters", map[string]interface{}{
			"collection": mcpsdk.StringParam("short_term or long_term", true),
			"limit":      mcpsdk.NumberParam("Maximum candidate pairs to return", false),
		}, []string{"collection"}),
		s.handlePreviewDuplicates)

	s.addTool("deduplicate_memories",
		"Run the batch dedup pass over a collection, merging every above-threshold pair.",
		mcpsdk.ObjectSchema("deduplicate_memories parameters", map[string]interface{}{
			"collection": mcpsdk.StringParam("short_term or long_term", true),
			"dry_run":    mcpsdk.BooleanParam("Report candidates without merging", false),
		}, []string{"collection"}),
		s.handleDeduplicateMemories)

	s.addTool("get_chunk_relationships",
		"Report a document's related chunks, cached adjacency/semantic/co-occurrence edges, and its deduplication history.",
		mcpsdk.ObjectSchema("get_chunk_relationships parameters", map[string]interface{}{
			"document_id": mcpsdk.StringParam("Document id to inspect", true),
			"chunk_id":    mcpsdk.StringParam("Specific chunk id within the document (optional; defaults to the first chunk)", false),
		}, []string{"document_id"}),
		s.handleGetChunkRelationships)

	s.addTool("start_background_maintenance",
		"Start the lifecycle controller's background worker (cleanup, aging refresh, stats snapshot, deep maintenance cadence).",
		mcpsdk.ObjectSchema("start_background_maintenance parameters", map[string]interface{}{}, nil),
		s.handleStartBackgroundMaintenance)

	s.addTool("stop_background_maintenance",
		"Stop the lifecycle controller's background worker, waiting up to timeout_seconds for it to join.",
		mcpsdk.ObjectSchema("stop_background_maintenance parameters", map[string]interface{}{
			"timeout_seconds": mcpsdk.NumberParam("Seconds to wait for the worker to stop (default 10)", false),
		}, nil),
		s.handleStopBackgroundMaintenance)

	s.addTool("cleanup_expired_memories",
		"Run CleanupExpired immediately: delete chunks whose TTL has elapsed in the given collection (or both, if omitted).",
		mcpsdk.ObjectSchema("cleanup_expired_memories parameters", map[string]interface{}{
			"collection": mcpsdk.StringParam("short_term or long_term; omit for both", false),
		}, nil),
		s.handleCleanupExpiredMemories)
}
