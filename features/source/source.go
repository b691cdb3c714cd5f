package source

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"docqa/internal/config"
	"docqa/internal/index"
	"docqa/internal/middleware"
	"docqa/internal/settings"
	"docqa/internal/worker"
)

var ErrDuplicate = errors.New("duplicate document")

// Document is an ingested source of text. The raw text is kept in Postgres
// so a reingest can replay it with fresh chunking parameters.
type Document struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"` // "text", "markdown", "pdf"
	ContentHash string `json:"-"`
	RawText     string `json:"-"`
	Status      string `json:"status"` // in_progress, completed, failed
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	UpdateStatus(ctx context.Context, id, status string) error
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// VectorStore is the durable copy of the chunk records.
type VectorStore interface {
	DeleteBySource(ctx context.Context, sourceID string) error
}

// ChunkIndex is the in-memory index the retriever searches.
type ChunkIndex interface {
	Clear(sourceIDs ...string)
	Stats(sourceID string) index.Stats
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type SettingsService interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type Service struct {
	repo     Repository
	pub      EventPublisher
	vectors  VectorStore
	idx      ChunkIndex
	settings SettingsService
}

func NewService(repo Repository, pub EventPublisher, vectors VectorStore, idx ChunkIndex, settings SettingsService) *Service {
	return &Service{repo: repo, pub: pub, vectors: vectors, idx: idx, settings: settings}
}

// Create registers a document and queues it for chunking and embedding.
// Duplicate text (by content hash) is rejected.
func (s *Service) Create(ctx context.Context, doc *Document) error {
	if doc.Kind == "" {
		doc.Kind = "text"
	}

	hash := sha256.Sum256([]byte(doc.RawText))
	doc.ContentHash = fmt.Sprintf("%x", hash)

	exists, err := s.repo.ExistsByHash(ctx, doc.ContentHash)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicate
	}

	doc.Status = "in_progress"
	if err := s.repo.Save(ctx, doc); err != nil {
		return err
	}

	return s.publishTask(ctx, doc)
}

type DocumentDetail struct {
	Document
	ChunkCount int `json:"chunk_count"`
}

func (s *Service) Get(ctx context.Context, id string) (*DocumentDetail, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := s.idx.Stats(id)
	return &DocumentDetail{
		Document:   *doc,
		ChunkCount: stats.ChunkCount,
	}, nil
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Delete removes the document's chunks from the index and the vector store,
// then soft deletes the row.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}

	s.idx.Clear(id)
	if err := s.vectors.DeleteBySource(ctx, id); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, id)
}

// Reingest drops the document's existing chunks and replays its text with
// the chunking parameters currently in force.
func (s *Service) Reingest(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	s.idx.Clear(id)
	if err := s.vectors.DeleteBySource(ctx, id); err != nil {
		return fmt.Errorf("failed to clear stored chunks: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, id, "in_progress"); err != nil {
		return err
	}

	return s.publishTask(ctx, doc)
}

func (s *Service) publishTask(ctx context.Context, doc *Document) error {
	maxChars, overlapChars := s.chunkParams(ctx)

	payload, err := json.Marshal(worker.IngestTaskPayload{
		SourceID:      doc.ID,
		Name:          doc.Name,
		Text:          doc.RawText,
		MaxChars:      maxChars,
		OverlapChars:  overlapChars,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return err
	}

	if err := s.pub.Publish(config.TopicIngestTask, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest task", "error", err, "document_id", doc.ID)
		return err
	}
	slog.InfoContext(ctx, "published ingest task", "document_id", doc.ID, "name", doc.Name)
	return nil
}

func (s *Service) chunkParams(ctx context.Context) (int, int) {
	set, err := s.settings.Get(ctx)
	if err != nil || set == nil {
		slog.WarnContext(ctx, "falling back to default chunk parameters", "error", err)
		return 1200, 150
	}
	return set.ChunkMaxChars, set.ChunkOverlapChars
}
