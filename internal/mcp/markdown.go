package mcp

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"memoria/internal/dedup"
	"memoria/pkg/types"
)

// md renders the markdown summary blocks the dedup/relationship tools
// attach to their results, grounded on the teacher's documents.Processor
// (goldmark.New() held once, reused across Convert calls).
var md = goldmark.New()

func renderMarkdown(source string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return source
	}
	return buf.String()
}

// dedupReportMarkdown renders a human-readable duplicate-candidate summary,
// the markdown block preview_duplicates/deduplicate_memories attach
// alongside their structured result.
func dedupReportMarkdown(report *dedup.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Duplicate scan: %s\n\n", report.Collection)
	if report.DryRun {
		b.WriteString("_dry run — no merges applied_\n\n")
	} else {
		fmt.Fprintf(&b, "merged %d pair(s)\n\n", report.MergedCount)
	}
	if len(report.Candidates) == 0 {
		b.WriteString("No candidate pairs above the similarity threshold.\n")
		return renderMarkdown(b.String())
	}
	b.WriteString("| Document A | Document B | Score |\n|---|---|---|\n")
	for _, c := range report.Candidates {
		fmt.Fprintf(&b, "| %s | %s | %.3f |\n", c.DocA, c.DocB, c.Score)
	}
	return renderMarkdown(b.String())
}

// relationshipsMarkdown renders a document's related-chunk edges and merge
// history, the markdown block get_chunk_relationships attaches alongside
// its structured result.
func relationshipsMarkdown(docRecord *types.DocumentRelationshipRecord, related []types.RelatedChunkEdge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Relationships: %s\n\n", docRecord.DocumentID)
	fmt.Fprintf(&b, "%d chunk(s), collection `%s`\n\n", docRecord.ChunkCount, docRecord.Collection)

	if len(related) > 0 {
		b.WriteString("## Related chunks\n\n")
		b.WriteString("| Chunk | Source | Score |\n|---|---|---|\n")
		for _, e := range related {
			fmt.Fprintf(&b, "| %s | %s | %.3f |\n", e.ChunkID, e.Source, e.Score)
		}
		b.WriteString("\n")
	}

	if len(docRecord.DeduplicationHistory) > 0 {
		b.WriteString("## Deduplication history\n\n")
		b.WriteString("| Merge ID | Merged document | Similarity |\n|---|---|---|\n")
		for _, h := range docRecord.DeduplicationHistory {
			fmt.Fprintf(&b, "| %s | %s | %.3f |\n", h.MergeID, h.MergedDocument, h.SimilarityScore)
		}
	}

	return renderMarkdown(b.String())
}
