package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"docqa/internal/middleware"
	"docqa/internal/retrieval"
	"docqa/internal/settings"
)

// Answerer runs the query-time retrieval pipeline.
type Answerer interface {
	Answer(ctx context.Context, query string, opts retrieval.Options) (*retrieval.Answer, error)
}

type SettingsService interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type Handler struct {
	answerer Answerer
	settings SettingsService
}

func NewHandler(answerer Answerer, settings SettingsService) *Handler {
	return &Handler{answerer: answerer, settings: settings}
}

type SourceRef struct {
	SourceID    string  `json:"source_id"`
	ChunkIndex  int     `json:"chunk_index"`
	ChunkKey    string  `json:"chunk_key"`
	Similarity  float64 `json:"similarity"`
	RerankScore float64 `json:"rerank_score"`
}

type AnswerResponse struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
}

// Ask handles POST /query. Per-request options override the stored
// settings; zero values fall back to them.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Query            string `json:"query"`
		TopK             int    `json:"top_k"`
		Rerank           *bool  `json:"rerank"`
		MaxContextChunks int    `json:"max_context_chunks"`
		PerChunkCharCap  int    `json:"per_chunk_char_cap"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Query is required", http.StatusBadRequest)
		return
	}

	opts := h.defaultOptions(ctx)
	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	if req.Rerank != nil {
		opts.RerankEnabled = *req.Rerank
	}
	if req.MaxContextChunks > 0 {
		opts.MaxContextChunks = req.MaxContextChunks
	}
	if req.PerChunkCharCap > 0 {
		opts.PerChunkCharCap = req.PerChunkCharCap
	}

	ans, err := h.answerer.Answer(ctx, req.Query, opts)
	if err != nil {
		var genErr *retrieval.GenerationError
		if errors.As(err, &genErr) {
			// Retrieval worked; surface the hits so the caller can still
			// inspect what would have grounded the answer.
			slog.ErrorContext(ctx, "answer generation failed", "error", err, "query", req.Query)
			h.writeGenerationError(ctx, w, genErr)
			return
		}
		slog.ErrorContext(ctx, "query failed", "error", err, "query", req.Query)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resp := AnswerResponse{
		Answer:  ans.Text,
		Sources: sourceRefs(ans.CitedHits),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) defaultOptions(ctx context.Context) retrieval.Options {
	set, err := h.settings.Get(ctx)
	if err != nil || set == nil {
		slog.WarnContext(ctx, "falling back to default query options", "error", err)
		return retrieval.Options{RerankEnabled: true}
	}
	return retrieval.Options{
		TopK:             set.TopK,
		RerankEnabled:    set.RerankEnabled,
		MaxContextChunks: set.MaxContextChunks,
		PerChunkCharCap:  set.PerChunkCharCap,
	}
}

func sourceRefs(hits []retrieval.RankedHit) []SourceRef {
	refs := make([]SourceRef, 0, len(hits))
	for _, hit := range hits {
		refs = append(refs, SourceRef{
			SourceID:    hit.Record.Chunk.SourceID,
			ChunkIndex:  hit.Record.Chunk.Index,
			ChunkKey:    hit.Record.Chunk.Key(),
			Similarity:  hit.Similarity,
			RerankScore: hit.RerankScore,
		})
	}
	return refs
}

func (h *Handler) writeGenerationError(ctx context.Context, w http.ResponseWriter, genErr *retrieval.GenerationError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    "GENERATION_FAILED",
			"message": "Answer generation failed",
		},
		"sources":       sourceRefs(genErr.Hits),
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
