package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"docqa/features/job"
	"docqa/internal/config"
	"docqa/internal/middleware"
	"docqa/internal/text"
)

// ingestTimeout bounds one document's chunk-and-embed run.
const ingestTimeout = 5 * time.Minute

// MaxIngestAttempts caps NSQ redelivery of an ingest task. The consumer
// config must use the same value: on the final attempt the failure is
// recorded as a failed job instead of being dropped by NSQ, so it stays
// recoverable through the jobs API.
const MaxIngestAttempts uint16 = 5

// IngestConsumer processes ingest.task messages: it chunks the document,
// embeds every chunk, and updates the document's status when done.
type IngestConsumer struct {
	ingestor  Ingestor
	updater   SourceStatusUpdater
	jobRepo   job.Repository
	publisher TaskPublisher
}

func NewIngestConsumer(i Ingestor, u SourceStatusUpdater, j job.Repository, p TaskPublisher) *IngestConsumer {
	return &IngestConsumer{
		ingestor:  i,
		updater:   u,
		jobRepo:   j,
		publisher: p,
	}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	if payload.SourceID == "" {
		slog.ErrorContext(ctx, "missing source id, dropping", "name", payload.Name)
		return nil
	}

	ingestCtx, cancel := context.WithTimeout(ctx, ingestTimeout)
	defer cancel()

	cfg := text.Config{MaxChars: payload.MaxChars, OverlapChars: payload.OverlapChars}
	report, err := h.ingestor.Ingest(ingestCtx, payload.SourceID, payload.Text, cfg)
	if err != nil {
		if errors.Is(err, text.ErrChunkConfig) {
			// Bad parameters never succeed on retry.
			slog.ErrorContext(ctx, "invalid chunk config, dropping task", "error", err, "source_id", payload.SourceID)
			h.recordFailure(ctx, payload, m.Body, err)
			return nil
		}
		slog.ErrorContext(ctx, "ingestion failed", "error", err, "source_id", payload.SourceID)
		return h.retryOrFail(ctx, payload, m, err)
	}

	if report.Added == 0 && report.FailedEmbedding > 0 {
		// Nothing indexed at all, likely a provider outage.
		slog.ErrorContext(ctx, "all embeddings failed", "source_id", payload.SourceID, "failed", report.FailedEmbedding)
		return h.retryOrFail(ctx, payload, m, errors.New("all embeddings failed"))
	}

	if report.FailedEmbedding > 0 {
		slog.WarnContext(ctx, "partial ingestion", "source_id", payload.SourceID,
			"added", report.Added, "failed_embedding", report.FailedEmbedding)
	}

	if err := h.updater.UpdateStatus(ctx, payload.SourceID, "completed"); err != nil {
		slog.WarnContext(ctx, "failed to update source status", "error", err, "source_id", payload.SourceID)
	}

	h.publishResult(ctx, IngestResultPayload{
		SourceID:         payload.SourceID,
		Status:           "completed",
		Added:            report.Added,
		SkippedDuplicate: report.SkippedDuplicate,
		FailedEmbedding:  report.FailedEmbedding,
		CorrelationID:    payload.CorrelationID,
	})

	slog.InfoContext(ctx, "document ingested", "source_id", payload.SourceID,
		"added", report.Added, "skipped_duplicate", report.SkippedDuplicate)
	return nil
}

// retryOrFail requeues a transient failure until the attempt cap. The last
// attempt is recorded like a permanent failure, so a provider outage ends up
// in failed_jobs rather than vanishing when NSQ gives up.
func (h *IngestConsumer) retryOrFail(ctx context.Context, payload IngestTaskPayload, m *nsq.Message, cause error) error {
	if m.Attempts >= MaxIngestAttempts {
		slog.ErrorContext(ctx, "ingest attempts exhausted, recording failed job",
			"source_id", payload.SourceID, "attempts", m.Attempts, "error", cause)
		h.recordFailure(ctx, payload, m.Body, cause)
		return nil
	}
	return cause
}

func (h *IngestConsumer) recordFailure(ctx context.Context, payload IngestTaskPayload, body []byte, cause error) {
	if err := h.updater.UpdateStatus(ctx, payload.SourceID, "failed"); err != nil {
		slog.WarnContext(ctx, "failed to update source status to failed", "error", err)
	}

	failedJob := &job.Job{
		SourceID: payload.SourceID,
		Handler:  "ingest-worker",
		Payload:  json.RawMessage(body),
		Error:    cause.Error(),
	}
	if err := h.jobRepo.Save(ctx, failedJob); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "error", err)
	} else {
		slog.InfoContext(ctx, "saved failed job for retry", "job_id", failedJob.ID)
	}

	h.publishResult(ctx, IngestResultPayload{
		SourceID:      payload.SourceID,
		Status:        "failed",
		Error:         cause.Error(),
		CorrelationID: payload.CorrelationID,
	})
}

func (h *IngestConsumer) publishResult(ctx context.Context, result IngestResultPayload) {
	if h.publisher == nil {
		return
	}
	body, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := h.publisher.Publish(config.TopicIngestResult, body); err != nil {
		slog.WarnContext(ctx, "failed to publish ingest result", "error", err)
	}
}
