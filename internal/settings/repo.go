package settings

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT id, top_k, rerank_enabled, max_context_chunks, per_chunk_char_cap, chunk_max_chars, chunk_overlap_chars FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.TopK, &s.RerankEnabled, &s.MaxContextChunks, &s.PerChunkCharCap, &s.ChunkMaxChars, &s.ChunkOverlapChars)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		UPDATE settings
		SET top_k = $1, rerank_enabled = $2, max_context_chunks = $3, per_chunk_char_cap = $4, chunk_max_chars = $5, chunk_overlap_chars = $6, updated_at = NOW()
		WHERE id = 1
	`
	_, err := r.db.ExecContext(ctx, query, s.TopK, s.RerankEnabled, s.MaxContextChunks, s.PerChunkCharCap, s.ChunkMaxChars, s.ChunkOverlapChars)
	return err
}
