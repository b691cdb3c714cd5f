package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"docqa/features/job"
	"docqa/features/query"
	"docqa/features/source"
	"docqa/features/stats"
	"docqa/internal/config"
	"docqa/internal/index"
	"docqa/internal/middleware"
	"docqa/internal/retrieval"
	"docqa/internal/settings"
	"docqa/internal/worker"
)

// Publisher is satisfied by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler        http.Handler
	SourceService  *source.Service
	IngestConsumer *worker.IngestConsumer

	cfg *config.Config
}

// New wires the feature slices together and builds the HTTP router.
func New(cfg *config.Config, db *sql.DB, pipeline *retrieval.Pipeline, col *index.Collection, vectors source.VectorStore, pub Publisher, logger *slog.Logger) *App {
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)
	settingsHandler := settings.NewHandler(settingsService)

	sourceRepo := source.NewPostgresRepo(db)
	sourceService := source.NewService(sourceRepo, pub, vectors, col, settingsService)
	sourceHandler := source.NewHandler(sourceService, cfg.UploadDir, cfg.MaxUploadSizeMB)

	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, pub, logger)
	jobHandler := job.NewHandler(jobService)

	statsHandler := stats.NewHandler(sourceRepo, jobRepo, col)
	queryHandler := query.NewHandler(pipeline, settingsService)

	ingestConsumer := worker.NewIngestConsumer(pipeline, sourceRepo, jobRepo, pub)

	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	route := func(pattern string, h http.HandlerFunc) (string, http.Handler) {
		return pattern, middleware.CorrelationID(enableCORS(h))
	}

	mux := http.NewServeMux()
	mux.Handle(route("POST /documents", sourceHandler.Create))
	mux.Handle(route("POST /documents/upload", sourceHandler.Upload))
	mux.Handle(route("GET /documents", sourceHandler.List))
	mux.Handle(route("GET /documents/{id}", sourceHandler.Get))
	mux.Handle(route("DELETE /documents/{id}", sourceHandler.Delete))
	mux.Handle(route("POST /documents/{id}/reingest", sourceHandler.Reingest))

	mux.Handle(route("POST /query", queryHandler.Ask))

	mux.Handle(route("GET /settings", settingsHandler.GetSettings))
	mux.Handle(route("PUT /settings", settingsHandler.UpdateSettings))

	mux.Handle(route("GET /jobs", jobHandler.List))
	mux.Handle(route("POST /jobs/{id}/retry", jobHandler.Retry))

	mux.Handle(route("GET /stats", statsHandler.GetStats))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status": "ok"}`)
	})

	return &App{
		Handler:        mux,
		SourceService:  sourceService,
		IngestConsumer: ingestConsumer,
		cfg:            cfg,
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("http server listening", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
