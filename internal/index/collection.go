package index

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const defaultConcurrency = 8

// Collection owns the embedded chunks of one document corpus. It is safe for
// concurrent use; independent collections share no state.
type Collection struct {
	id          string
	concurrency int

	mu      sync.RWMutex
	records []Record
	keys    map[string]struct{}
}

func NewCollection(id string) *Collection {
	return &Collection{
		id:          id,
		concurrency: defaultConcurrency,
		keys:        make(map[string]struct{}),
	}
}

// SetConcurrency bounds the per-item embedding fan-out during ingestion.
func (c *Collection) SetConcurrency(n int) {
	if n > 0 {
		c.concurrency = n
	}
}

func (c *Collection) ID() string {
	return c.id
}

// Ingest embeds and stores the given chunk texts for one source. Chunk
// indexes are positional, so re-ingesting identical content is a no-op.
// Per-chunk embedding failures drop exactly that chunk and are counted in
// the report; they never abort the run or shift later chunks.
//
// The returned records are the ones newly added, in chunk-index order, so
// callers can write them through to persistent storage.
func (c *Collection) Ingest(ctx context.Context, sourceID string, texts []string, embedder Embedder) (Report, []Record) {
	var report Report

	pending := make([]Chunk, 0, len(texts))
	c.mu.RLock()
	for i, txt := range texts {
		if strings.TrimSpace(txt) == "" {
			continue
		}
		chunk := Chunk{SourceID: sourceID, Index: i, Text: txt}
		if _, ok := c.keys[chunk.Key()]; ok {
			report.SkippedDuplicate++
			continue
		}
		pending = append(pending, chunk)
	}
	c.mu.RUnlock()

	if len(pending) == 0 {
		return report, nil
	}

	vectors := c.embedAll(ctx, pending, embedder)

	c.mu.Lock()
	defer c.mu.Unlock()

	added := make([]Record, 0, len(pending))
	for i, chunk := range pending {
		if len(vectors[i]) == 0 {
			report.FailedEmbedding++
			continue
		}
		key := chunk.Key()
		if _, ok := c.keys[key]; ok {
			report.SkippedDuplicate++
			continue
		}
		rec := Record{Chunk: chunk, Vector: vectors[i]}
		c.records = append(c.records, rec)
		c.keys[key] = struct{}{}
		added = append(added, rec)
		report.Added++
	}
	return report, added
}

// embedAll returns one vector slot per pending chunk, merged by original
// chunk position regardless of completion order. A failed call leaves its
// own slot nil and touches nothing else.
func (c *Collection) embedAll(ctx context.Context, pending []Chunk, embedder Embedder) [][]float32 {
	vectors := make([][]float32, len(pending))

	if batcher, ok := embedder.(BatchEmbedder); ok {
		texts := make([]string, len(pending))
		for i, ch := range pending {
			texts[i] = ch.Text
		}
		batch, err := batcher.EmbedBatch(ctx, texts)
		if err == nil && len(batch) == len(pending) {
			copy(vectors, batch)
		} else if err != nil {
			slog.WarnContext(ctx, "batch embedding failed, retrying per item", "error", err, "chunks", len(pending))
		}
	}

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	for i := range pending {
		if len(vectors[i]) > 0 {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			vec, err := embedder.Embed(ctx, pending[i].Text)
			if err != nil {
				slog.ErrorContext(ctx, "embedding failed, dropping chunk", "error", err, "key", pending[i].Key())
				return
			}
			vectors[i] = vec
		}(i)
	}
	wg.Wait()
	return vectors
}

// Restore loads previously persisted records, typically at startup. Records
// with missing vectors or duplicate keys are skipped. Returns the number of
// records loaded.
func (c *Collection) Restore(records []Record) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	loaded := 0
	for _, rec := range records {
		if len(rec.Vector) == 0 || strings.TrimSpace(rec.Chunk.Text) == "" {
			continue
		}
		key := rec.Chunk.Key()
		if _, ok := c.keys[key]; ok {
			continue
		}
		c.records = append(c.records, rec)
		c.keys[key] = struct{}{}
		loaded++
	}
	return loaded
}

// Count returns the number of stored (chunk, vector) pairs.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Records returns a snapshot of the stored records in insertion order.
func (c *Collection) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Clear drops all entries, or only the entries of the given sources.
func (c *Collection) Clear(sourceIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(sourceIDs) == 0 {
		c.records = nil
		c.keys = make(map[string]struct{})
		return
	}

	drop := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		drop[id] = struct{}{}
	}

	kept := c.records[:0]
	for _, rec := range c.records {
		if _, ok := drop[rec.Chunk.SourceID]; ok {
			delete(c.keys, rec.Chunk.Key())
			continue
		}
		kept = append(kept, rec)
	}
	c.records = kept
}

// Stats reports counts for the whole collection, or for one source when
// sourceID is non-empty.
func (c *Collection) Stats(sourceID string) Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if sourceID == "" {
		return Stats{ChunkCount: len(c.records), VectorCount: len(c.records)}
	}
	n := 0
	for _, rec := range c.records {
		if rec.Chunk.SourceID == sourceID {
			n++
		}
	}
	return Stats{ChunkCount: n, VectorCount: n}
}
