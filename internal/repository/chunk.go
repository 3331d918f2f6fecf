package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cloo-solutions/voicerag/internal/domain"
	"github.com/cloo-solutions/voicerag/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ChunkRepository persists catalog chunks and their embedding vectors.
type ChunkRepository struct {
	pool *pgxpool.Pool
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{pool: pool}
}

// Count returns the number of embedded chunks currently stored.
func (r *ChunkRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM catalog_chunks`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Meta returns the stored build metadata, or nil when no build has
// completed yet.
func (r *ChunkRepository) Meta(ctx context.Context) (*service.IndexMeta, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	meta := &service.IndexMeta{
		Fingerprint:    values["fingerprint"],
		EmbeddingModel: values["embedding_model"],
	}
	if raw, ok := values["chunk_count"]; ok {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt index_meta chunk_count %q: %w", raw, err)
		}
		meta.ChunkCount = count
	}
	if raw, ok := values["built_at"]; ok {
		builtAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt index_meta built_at %q: %w", raw, err)
		}
		meta.BuiltAt = builtAt
	}
	return meta, nil
}

// ReplaceAll rebuilds the stored index in a single transaction: existing
// chunks are deleted, the new set inserted, and the build metadata
// updated together. A failure partway leaves the previous state intact,
// so a staleness check never reports a half-built index as ready.
func (r *ChunkRepository) ReplaceAll(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32, meta service.IndexMeta) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM catalog_chunks`); err != nil {
		return err
	}

	now := time.Now().UTC()
	for i, c := range chunks {
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for chunk %s: %w", c.ID, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO catalog_chunks (id, category, content, metadata, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.Category, c.Text, metadata, pgvector.NewVector(embeddings[i]), now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if meta.BuiltAt.IsZero() {
		meta.BuiltAt = now
	}
	if err := upsertMeta(ctx, tx, meta); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func upsertMeta(ctx context.Context, tx dbtx, meta service.IndexMeta) error {
	entries := map[string]string{
		"chunk_count":     strconv.Itoa(meta.ChunkCount),
		"fingerprint":     meta.Fingerprint,
		"embedding_model": meta.EmbeddingModel,
		"built_at":        meta.BuiltAt.UTC().Format(time.RFC3339),
	}
	for key, value := range entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO index_meta (key, value, updated_at)
			 VALUES ($1, $2, now())
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			key, value,
		)
		if err != nil {
			return fmt.Errorf("failed to update index metadata: %w", err)
		}
	}
	return nil
}

// NearestNeighbors returns up to limit chunks ordered by descending
// cosine similarity to the query vector. Ties are broken by chunk ID
// ascending so results are reproducible.
func (r *ChunkRepository) NearestNeighbors(ctx context.Context, embedding []float32, limit int) ([]domain.RetrievedChunk, error) {
	if limit <= 0 {
		return []domain.RetrievedChunk{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, category, content, metadata, 1 - (embedding <=> $1) AS score
		 FROM catalog_chunks
		 ORDER BY embedding <=> $1 ASC, id ASC
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.RetrievedChunk, 0, limit)
	for rows.Next() {
		var rc domain.RetrievedChunk
		var metadata []byte
		if err := rows.Scan(&rc.Chunk.ID, &rc.Chunk.Category, &rc.Chunk.Text, &metadata, &rc.Score); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rc.Chunk.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for chunk %s: %w", rc.Chunk.ID, err)
			}
		}
		results = append(results, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// List returns every stored chunk in ID order, without vectors.
func (r *ChunkRepository) List(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, category, content, metadata FROM catalog_chunks ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := make([]domain.Chunk, 0)
	for rows.Next() {
		var c domain.Chunk
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.Category, &c.Text, &metadata); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for chunk %s: %w", c.ID, err)
			}
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// GetByID returns a single stored chunk.
func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	var c domain.Chunk
	var metadata []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, category, content, metadata FROM catalog_chunks WHERE id = $1`, id,
	).Scan(&c.ID, &c.Category, &c.Text, &metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("chunk %s not found", id))
		}
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for chunk %s: %w", c.ID, err)
		}
	}
	return &c, nil
}
