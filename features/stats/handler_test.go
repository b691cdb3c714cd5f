package stats_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"docqa/features/stats"
	"docqa/internal/index"
)

type stubCounter struct {
	count int
	err   error
}

func (s stubCounter) Count(ctx context.Context) (int, error) {
	return s.count, s.err
}

type stubIndex struct {
	stats index.Stats
}

func (s stubIndex) Stats(sourceID string) index.Stats {
	return s.stats
}

func TestHandler_GetStats(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := stats.NewHandler(
			stubCounter{count: 4},
			stubCounter{count: 1},
			stubIndex{stats: index.Stats{ChunkCount: 120, VectorCount: 120}},
		)

		req := httptest.NewRequest("GET", "/stats", nil)
		w := httptest.NewRecorder()
		handler.GetStats(w, req)

		assert.Equal(t, http.StatusOK, w.Result().StatusCode)

		var resp map[string]interface{}
		json.NewDecoder(w.Body).Decode(&resp)
		data := resp["data"].(map[string]interface{})
		assert.Equal(t, 4.0, data["documents"])
		assert.Equal(t, 120.0, data["chunks"])
		assert.Equal(t, 120.0, data["vectors"])
		assert.Equal(t, 1.0, data["failed_jobs"])
	})

	t.Run("DocumentCountError", func(t *testing.T) {
		handler := stats.NewHandler(
			stubCounter{err: errors.New("db down")},
			stubCounter{},
			stubIndex{},
		)

		req := httptest.NewRequest("GET", "/stats", nil)
		w := httptest.NewRecorder()
		handler.GetStats(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)

		var resp map[string]interface{}
		json.NewDecoder(w.Body).Decode(&resp)
		errObj := resp["error"].(map[string]interface{})
		assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
	})
}
