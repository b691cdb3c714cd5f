package query_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/features/query"
	"docqa/internal/index"
	"docqa/internal/retrieval"
	"docqa/internal/settings"
)

type stubAnswerer struct {
	gotQuery string
	gotOpts  retrieval.Options
	answer   *retrieval.Answer
	err      error
}

func (s *stubAnswerer) Answer(ctx context.Context, q string, opts retrieval.Options) (*retrieval.Answer, error) {
	s.gotQuery = q
	s.gotOpts = opts
	return s.answer, s.err
}

type stubSettings struct {
	set *settings.Settings
	err error
}

func (s stubSettings) Get(ctx context.Context) (*settings.Settings, error) {
	return s.set, s.err
}

func storedSettings() stubSettings {
	return stubSettings{set: &settings.Settings{
		TopK:             7,
		RerankEnabled:    true,
		MaxContextChunks: 3,
		PerChunkCharCap:  800,
	}}
}

func rankedHit(sourceID string, idx int, sim, score float64) retrieval.RankedHit {
	return retrieval.RankedHit{
		Hit: retrieval.Hit{
			Record: index.Record{
				Chunk: index.Chunk{SourceID: sourceID, Index: idx, Text: "excerpt"},
			},
			Similarity: sim,
		},
		RerankScore: score,
	}
}

func TestHandler_Ask(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		answerer := &stubAnswerer{answer: &retrieval.Answer{
			Text:      "According to Source 1, margins improved.",
			CitedHits: []retrieval.RankedHit{rankedHit("doc-1", 2, 0.83, 9.0)},
		}}
		handler := query.NewHandler(answerer, storedSettings())

		req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query": "what changed"}`))
		w := httptest.NewRecorder()
		handler.Ask(w, req)

		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Equal(t, "what changed", answerer.gotQuery)
		assert.Equal(t, 7, answerer.gotOpts.TopK)
		assert.True(t, answerer.gotOpts.RerankEnabled)

		var resp map[string]interface{}
		json.NewDecoder(w.Body).Decode(&resp)
		data := resp["data"].(map[string]interface{})
		assert.Equal(t, "According to Source 1, margins improved.", data["answer"])

		sources := data["sources"].([]interface{})
		require.Len(t, sources, 1)
		src := sources[0].(map[string]interface{})
		assert.Equal(t, "doc-1", src["source_id"])
		assert.Equal(t, "doc-1::chunk-2", src["chunk_key"])
		assert.Equal(t, 9.0, src["rerank_score"])
	})

	t.Run("RequestOverridesSettings", func(t *testing.T) {
		answerer := &stubAnswerer{answer: &retrieval.Answer{Text: "ok"}}
		handler := query.NewHandler(answerer, storedSettings())

		body := `{"query": "q", "top_k": 2, "rerank": false, "max_context_chunks": 5, "per_chunk_char_cap": 300}`
		req := httptest.NewRequest("POST", "/query", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.Ask(w, req)

		assert.Equal(t, 2, answerer.gotOpts.TopK)
		assert.False(t, answerer.gotOpts.RerankEnabled)
		assert.Equal(t, 5, answerer.gotOpts.MaxContextChunks)
		assert.Equal(t, 300, answerer.gotOpts.PerChunkCharCap)
	})

	t.Run("OmittedOverridesKeepStoredSettings", func(t *testing.T) {
		answerer := &stubAnswerer{answer: &retrieval.Answer{Text: "ok"}}
		handler := query.NewHandler(answerer, storedSettings())

		req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query": "q"}`))
		w := httptest.NewRecorder()
		handler.Ask(w, req)

		assert.Equal(t, 3, answerer.gotOpts.MaxContextChunks)
		assert.Equal(t, 800, answerer.gotOpts.PerChunkCharCap)
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		handler := query.NewHandler(&stubAnswerer{}, storedSettings())

		req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query": ""}`))
		w := httptest.NewRecorder()
		handler.Ask(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		handler := query.NewHandler(&stubAnswerer{}, storedSettings())

		req := httptest.NewRequest("POST", "/query", strings.NewReader(`{not json`))
		w := httptest.NewRecorder()
		handler.Ask(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})

	t.Run("GenerationFailure", func(t *testing.T) {
		genErr := &retrieval.GenerationError{
			Query: "q",
			Hits:  []retrieval.RankedHit{rankedHit("doc-1", 0, 0.9, 8.0)},
			Err:   errors.New("model unavailable"),
		}
		handler := query.NewHandler(&stubAnswerer{err: genErr}, storedSettings())

		req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query": "q"}`))
		w := httptest.NewRecorder()
		handler.Ask(w, req)

		assert.Equal(t, http.StatusBadGateway, w.Result().StatusCode)

		var resp map[string]interface{}
		json.NewDecoder(w.Body).Decode(&resp)
		errObj := resp["error"].(map[string]interface{})
		assert.Equal(t, "GENERATION_FAILED", errObj["code"])
		sources := resp["sources"].([]interface{})
		assert.Len(t, sources, 1)
	})

	t.Run("EmbeddingFailure", func(t *testing.T) {
		handler := query.NewHandler(&stubAnswerer{err: errors.New("embedding query: boom")}, storedSettings())

		req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query": "q"}`))
		w := httptest.NewRecorder()
		handler.Ask(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)
	})

	t.Run("SettingsUnavailableUsesDefaults", func(t *testing.T) {
		answerer := &stubAnswerer{answer: &retrieval.Answer{Text: "ok"}}
		handler := query.NewHandler(answerer, stubSettings{err: errors.New("db down")})

		req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query": "q"}`))
		w := httptest.NewRecorder()
		handler.Ask(w, req)

		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Equal(t, 0, answerer.gotOpts.TopK) // pipeline applies its own defaults
		assert.True(t, answerer.gotOpts.RerankEnabled)
	})
}
