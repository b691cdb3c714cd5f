package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docqa/internal/index"
	"docqa/internal/middleware"
	"docqa/internal/text"
)

// NoMaterialAnswer is returned verbatim when retrieval finds nothing; the
// reranker and generator are never invoked in that case.
const NoMaterialAnswer = "No relevant material was found in the indexed documents for this query."

const (
	defaultTopK             = 5
	defaultMaxContextChunks = 3
	defaultPerChunkCharCap  = 800
)

// Options configures one query. Zero values fall back to the defaults above;
// retrieval itself cannot be disabled.
type Options struct {
	TopK             int  `json:"top_k"`
	RerankEnabled    bool `json:"rerank_enabled"`
	MaxContextChunks int  `json:"max_context_chunks"`
	PerChunkCharCap  int  `json:"per_chunk_char_cap"`
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = defaultTopK
	}
	if o.MaxContextChunks <= 0 {
		o.MaxContextChunks = defaultMaxContextChunks
	}
	if o.PerChunkCharCap <= 0 {
		o.PerChunkCharCap = defaultPerChunkCharCap
	}
	return o
}

// Persister mirrors newly indexed records to durable storage. Writes are
// best-effort: the in-memory collection stays authoritative for the process.
type Persister interface {
	StoreRecords(ctx context.Context, records []index.Record) error
}

// Pipeline coordinates chunking, embedding, retrieval, optional re-ranking
// and grounded answer generation over one collection.
type Pipeline struct {
	col       *index.Collection
	embedder  index.Embedder
	score     ScoreFunc
	answer    AnswerFunc
	persister Persister
	logger    *QueryLogger
}

func NewPipeline(col *index.Collection, embedder index.Embedder, score ScoreFunc, answer AnswerFunc, persister Persister, logger *QueryLogger) *Pipeline {
	return &Pipeline{
		col:       col,
		embedder:  embedder,
		score:     score,
		answer:    answer,
		persister: persister,
		logger:    logger,
	}
}

// Ingest chunks a document and embeds and stores its chunks. An invalid
// chunk configuration fails the whole call before anything is ingested;
// per-chunk embedding failures are recovered locally and reported.
func (p *Pipeline) Ingest(ctx context.Context, sourceID, rawText string, cfg text.Config) (index.Report, error) {
	chunks, err := text.Chunk(rawText, cfg.MaxChars, cfg.OverlapChars)
	if err != nil {
		return index.Report{}, fmt.Errorf("chunking %s: %w", sourceID, err)
	}

	report, added := p.col.Ingest(ctx, sourceID, chunks, p.embedder)

	if p.persister != nil && len(added) > 0 {
		if err := p.persister.StoreRecords(ctx, added); err != nil {
			slog.WarnContext(ctx, "failed to persist records, index remains in-memory only", "error", err, "source_id", sourceID, "records", len(added))
		}
	}

	slog.InfoContext(ctx, "document ingested",
		"source_id", sourceID,
		"added", report.Added,
		"skipped_duplicate", report.SkippedDuplicate,
		"failed_embedding", report.FailedEmbedding)
	return report, nil
}

// Answer runs the query-time stages in order: embed the query, retrieve,
// optionally rerank, generate. Zero retrieved hits short-circuit with an
// explicit no-material answer.
func (p *Pipeline) Answer(ctx context.Context, query string, opts Options) (*Answer, error) {
	opts = opts.withDefaults()
	start := time.Now()

	queryVec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits := Retrieve(queryVec, p.col, opts.TopK)
	if len(hits) == 0 {
		p.log(ctx, query, 0, false, time.Since(start))
		return &Answer{Text: NoMaterialAnswer, Collection: p.col.ID()}, nil
	}

	var ranked []RankedHit
	if opts.RerankEnabled {
		ranked = Rerank(ctx, query, hits, p.score)
	} else {
		ranked = passthroughRank(hits)
	}

	ans, err := Generate(ctx, query, ranked, opts.MaxContextChunks, opts.PerChunkCharCap, p.answer)
	if err != nil {
		return nil, err
	}
	ans.Collection = p.col.ID()

	p.log(ctx, query, len(ans.CitedHits), opts.RerankEnabled, time.Since(start))
	return ans, nil
}

// Stats reports index counts, optionally scoped to one source.
func (p *Pipeline) Stats(sourceID string) index.Stats {
	return p.col.Stats(sourceID)
}

func (p *Pipeline) log(ctx context.Context, query string, results int, reranked bool, elapsed time.Duration) {
	if p.logger == nil {
		return
	}
	p.logger.Log(QueryLogEntry{
		Query:         query,
		NumResults:    results,
		Reranked:      reranked,
		Duration:      elapsed,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
}
