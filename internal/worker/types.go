package worker

import (
	"context"

	"docqa/internal/index"
	"docqa/internal/text"
)

// Ingestor chunks, embeds, and indexes a document's text.
type Ingestor interface {
	Ingest(ctx context.Context, sourceID, rawText string, cfg text.Config) (index.Report, error)
}

type SourceStatusUpdater interface {
	UpdateStatus(ctx context.Context, id, status string) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}
