package index

import (
	"context"
	"fmt"
)

// Chunk is one retrievable unit of a document. Identity is the pair
// (SourceID, Index).
type Chunk struct {
	SourceID string `json:"source_id"`
	Index    int    `json:"chunk_index"`
	Text     string `json:"text"`
}

// Key derives the deterministic external key for a chunk. Re-ingesting the
// same document yields the same keys, which is what makes ingestion
// idempotent.
func (c Chunk) Key() string {
	return fmt.Sprintf("%s::chunk-%d", c.SourceID, c.Index)
}

// Record pairs a chunk with its embedding vector. Chunks and vectors are
// stored as one record on purpose: a chunk whose embedding failed is dropped
// together with its slot, so the text and vector sides can never drift out
// of alignment.
type Record struct {
	Chunk  Chunk     `json:"chunk"`
	Vector []float32 `json:"vector"`
}

// Report summarises one ingestion run.
type Report struct {
	Added            int `json:"chunks_added"`
	SkippedDuplicate int `json:"chunks_skipped_duplicate"`
	FailedEmbedding  int `json:"chunks_failed_embedding"`
}

// Stats exposes collection counts for observability. The two counts are
// equal by construction; both are reported so callers can verify the
// invariant cheaply.
type Stats struct {
	ChunkCount  int `json:"chunk_count"`
	VectorCount int `json:"vector_count"`
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is optionally implemented by embedders that support
// embedding several texts in one call. Ingestion prefers the batch path and
// falls back to per-item calls when the batch fails.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
