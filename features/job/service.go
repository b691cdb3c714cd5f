package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docqa/internal/config"
)

// publishTimeout bounds the NSQ publish during a retry so a wedged producer
// cannot hang the HTTP request.
const publishTimeout = 5 * time.Second

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo   Repository
	pub    EventPublisher
	logger *slog.Logger
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, pub: pub, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// Retry republishes the job's original payload to ingest.task and removes
// the parked row once the publish succeeds.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicIngestTask, j.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(publishTimeout):
		return errors.New("timeout waiting for NSQ publish")
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "job republished", "job_id", j.ID, "source_id", j.SourceID)
	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
