//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/cloo-solutions/voicerag/internal/domain"
	"github.com/cloo-solutions/voicerag/internal/service"
	"github.com/cloo-solutions/voicerag/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEmbedding(seed float32) []float32 {
	v := make([]float32, 1536)
	v[0] = seed
	v[1] = 1 - seed
	return v
}

func seedChunks() ([]domain.Chunk, [][]float32) {
	chunks := []domain.Chunk{
		{
			ID:       "faq_0",
			Category: domain.ChunkCategoryFAQ,
			Text:     "Question: What payment methods do you accept? Answer: All major credit cards.",
			Metadata: map[string]string{"category": "faq"},
		},
		{
			ID:       "product_0",
			Category: domain.ChunkCategoryProduct,
			Text:     "Product: Wireless Mouse. Price: $25.00.",
			Metadata: map[string]string{"category": "product", "name": "Wireless Mouse"},
		},
		{
			ID:       "product_1",
			Category: domain.ChunkCategoryProduct,
			Text:     "Product: USB-C Hub. Price: $39.99.",
			Metadata: map[string]string{"category": "product", "name": "USB-C Hub"},
		},
	}
	embeddings := [][]float32{
		testEmbedding(0.1),
		testEmbedding(0.9),
		testEmbedding(0.8),
	}
	return chunks, embeddings
}

func TestChunkRepositoryIntegration(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	t.Run("empty store", func(t *testing.T) {
		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		meta, err := repo.Meta(ctx)
		require.NoError(t, err)
		assert.Nil(t, meta)
	})

	t.Run("replace all and read back", func(t *testing.T) {
		chunks, embeddings := seedChunks()
		meta := service.IndexMeta{ChunkCount: len(chunks), Fingerprint: "fp-1", EmbeddingModel: "text-embedding-3-small"}
		require.NoError(t, repo.ReplaceAll(ctx, chunks, embeddings, meta))

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		stored, err := repo.Meta(ctx)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, 3, stored.ChunkCount)
		assert.Equal(t, "fp-1", stored.Fingerprint)
		assert.Equal(t, "text-embedding-3-small", stored.EmbeddingModel)
		assert.False(t, stored.BuiltAt.IsZero())

		got, err := repo.GetByID(ctx, "product_0")
		require.NoError(t, err)
		assert.Equal(t, domain.ChunkCategoryProduct, got.Category)
		assert.Equal(t, "Wireless Mouse", got.Metadata["name"])
	})

	t.Run("nearest neighbors ordered by similarity", func(t *testing.T) {
		results, err := repo.NearestNeighbors(ctx, testEmbedding(0.9), 2)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "product_0", results[0].Chunk.ID)
		assert.Equal(t, "product_1", results[1].Chunk.ID)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("zero limit returns empty", func(t *testing.T) {
		results, err := repo.NearestNeighbors(ctx, testEmbedding(0.5), 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("list is id ordered", func(t *testing.T) {
		chunks, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, "faq_0", chunks[0].ID)
		assert.Equal(t, "product_0", chunks[1].ID)
		assert.Equal(t, "product_1", chunks[2].ID)
	})

	t.Run("get missing chunk", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "order_99")
		require.Error(t, err)

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeNotFound, domainErr.Code)
	})

	t.Run("replace swaps the whole set atomically", func(t *testing.T) {
		replacement := []domain.Chunk{
			{ID: "policy_0", Category: domain.ChunkCategoryPolicy, Text: "Policy: Returns accepted within 30 days."},
		}
		meta := service.IndexMeta{ChunkCount: 1, Fingerprint: "fp-2", EmbeddingModel: "text-embedding-3-small"}
		require.NoError(t, repo.ReplaceAll(ctx, replacement, [][]float32{testEmbedding(0.5)}, meta))

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		stored, err := repo.Meta(ctx)
		require.NoError(t, err)
		assert.Equal(t, "fp-2", stored.Fingerprint)
	})

	t.Run("mismatched embeddings rejected", func(t *testing.T) {
		chunks, _ := seedChunks()
		err := repo.ReplaceAll(ctx, chunks, [][]float32{testEmbedding(0.1)}, service.IndexMeta{ChunkCount: 3})
		require.Error(t, err)

		// Previous state is untouched.
		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}
