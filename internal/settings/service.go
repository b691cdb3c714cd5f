package settings

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalid = errors.New("invalid settings")

// Settings holds the tunable retrieval and chunking parameters, stored as a
// single row so operators can adjust them without a redeploy.
type Settings struct {
	ID                int  `json:"-"`
	TopK              int  `json:"top_k"`
	RerankEnabled     bool `json:"rerank_enabled"`
	MaxContextChunks  int  `json:"max_context_chunks"`
	PerChunkCharCap   int  `json:"per_chunk_char_cap"`
	ChunkMaxChars     int  `json:"chunk_max_chars"`
	ChunkOverlapChars int  `json:"chunk_overlap_chars"`
}

func (s *Settings) Validate() error {
	if s.TopK < 1 {
		return fmt.Errorf("%w: top_k must be at least 1", ErrInvalid)
	}
	if s.MaxContextChunks < 1 {
		return fmt.Errorf("%w: max_context_chunks must be at least 1", ErrInvalid)
	}
	if s.PerChunkCharCap < 1 {
		return fmt.Errorf("%w: per_chunk_char_cap must be at least 1", ErrInvalid)
	}
	if s.ChunkMaxChars < 1 {
		return fmt.Errorf("%w: chunk_max_chars must be at least 1", ErrInvalid)
	}
	if s.ChunkOverlapChars < 0 || s.ChunkOverlapChars >= s.ChunkMaxChars {
		return fmt.Errorf("%w: chunk_overlap_chars must be non-negative and smaller than chunk_max_chars", ErrInvalid)
	}
	return nil
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, set)
}
