package engine

import "memoria/pkg/types"

// Ingest outcome labels, surfaced in IngestReport.Action and exposed to
// callers through the add_document tool response.
const (
	ActionAdded           = "added"
	ActionBoostedExisting = "boosted_existing"
)

// IngestReport summarizes one StorageService.Ingest call: which tier the
// document landed in, its computed importance, how many chunks were
// written, and whether it deduplicated against an existing document.
type IngestReport struct {
	DocumentID      string
	AssignedTier    types.CollectionType
	ImportanceScore float64
	Action          string
	ChunksAdded     int
}
