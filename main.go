package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"docqa/internal/adapter/gemini"
	"docqa/internal/adapter/openai"
	"docqa/internal/app"
	"docqa/internal/config"
	"docqa/internal/index"
	"docqa/internal/logger"
	"docqa/internal/retrieval"
	"docqa/internal/worker"
)

func main() {
	baseHandler := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(logger.NewContextHandler(baseHandler)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	// LLM adapters
	var (
		embedder index.Embedder
		score    retrieval.ScoreFunc
		answer   retrieval.AnswerFunc
	)
	switch cfg.LLMProvider {
	case "openai":
		client := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		embedder = client
		score = client.Score
		answer = client.Answer
	default:
		gEmbedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey)
		if err != nil {
			slog.Error("failed to create gemini embedder", "error", err)
			os.Exit(1)
		}
		defer gEmbedder.Close()

		generator, err := gemini.NewGenerator(ctx, cfg.GeminiAPIKey)
		if err != nil {
			slog.Error("failed to create gemini generator", "error", err)
			os.Exit(1)
		}
		defer generator.Close()

		embedder = gEmbedder
		score = generator.Score
		answer = generator.Answer
	}

	// In-memory index, restored from the vector store on boot.
	col := index.NewCollection("documents")
	col.SetConcurrency(cfg.IngestionConcurrency)

	records, err := deps.VectorStore.LoadRecords(ctx)
	if err != nil {
		slog.Warn("failed to restore index from vector store, starting empty", "error", err)
	} else {
		col.Restore(records)
		slog.Info("index restored", "records", len(records))
	}

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	pipeline := retrieval.NewPipeline(col, embedder, score, answer, deps.VectorStore, queryLogger)

	application := app.New(cfg, deps.DB, pipeline, col, deps.VectorStore, deps.NSQProducer, slog.Default())

	if cfg.EnableIngestWorker {
		nsqCfg := nsq.NewConfig()
		nsqCfg.MaxAttempts = worker.MaxIngestAttempts

		consumer, err := nsq.NewConsumer(config.TopicIngestTask, "ingest-worker", nsqCfg)
		if err != nil {
			slog.Error("failed to create NSQ consumer", "error", err)
			os.Exit(1)
		}
		consumer.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
			return application.IngestConsumer.HandleMessage(m)
		}), 2)

		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "error", err)
			os.Exit(1)
		}
		defer consumer.Stop()
		slog.Info("ingest consumer connected", "topic", config.TopicIngestTask)
	}

	if !cfg.EnableAPI {
		slog.Info("api disabled, running worker only")
		<-ctx.Done()
		return
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
