package retrieval

import (
	"context"

	"docqa/internal/index"
)

// Hit is one retrieved chunk with its cosine similarity to the query,
// always in [-1, 1].
type Hit struct {
	Record     index.Record `json:"record"`
	Similarity float64      `json:"similarity"`
}

// RankedHit is a Hit with a relevance score in [0, 10]. After re-ranking the
// score comes from the language model; otherwise it is similarity * 10.
type RankedHit struct {
	Hit
	RerankScore float64 `json:"rerank_score"`
}

// Answer is the final result of one query: the generated text and the exact
// ordered hits it was grounded on, so callers can render citations without
// re-deriving them.
type Answer struct {
	Text       string      `json:"text"`
	CitedHits  []RankedHit `json:"cited_hits"`
	Collection string      `json:"collection"`
}

// ScoreFunc asks a language model to rate how relevant a chunk is to the
// query on a 0-10 scale and returns the raw model text; the reranker owns
// parsing so a malformed response degrades only its own hit.
type ScoreFunc func(ctx context.Context, query, chunkText string) (string, error)

// AnswerFunc asks the generation service for a grounded answer given the
// query and an annotated context block.
type AnswerFunc func(ctx context.Context, query, contextBlock string) (string, error)
