package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const correlationHeader = "X-Correlation-ID"

type key int

// CorrelationKey is the context key for the request's correlation ID. The ID
// travels from the HTTP layer through the ingest task payload into the NSQ
// worker, so one document's whole journey can be grepped from the logs.
const CorrelationKey key = 0

// CorrelationID accepts an incoming X-Correlation-ID or mints one, stores it
// in the request context, echoes it in the response, and logs request
// start/completion.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), CorrelationKey, id)
		w.Header().Set(correlationHeader, id)

		start := time.Now()
		slog.Info("request received", "method", r.Method, "path", r.URL.Path, "correlation_id", id) // #nosec G706 -- r.URL.Path is parsed by Go's net/http

		next.ServeHTTP(w, r.WithContext(ctx))

		slog.Info("request completed", "method", r.Method, "path", r.URL.Path, "correlation_id", id, "duration", time.Since(start)) // #nosec G706
	})
}

// GetCorrelationID reads the ID from ctx; "unknown" outside a request or
// worker scope.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationKey).(string); ok {
		return id
	}
	return "unknown"
}

// WithCorrelationID re-attaches an ID carried out-of-band, e.g. from a queued
// task payload.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationKey, id)
}
