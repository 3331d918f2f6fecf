package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/voicerag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChunkStore is a mock implementation of ChunkStore
type MockChunkStore struct {
	mock.Mock
}

func (m *MockChunkStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockChunkStore) Meta(ctx context.Context) (*IndexMeta, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*IndexMeta), args.Error(1)
}

func (m *MockChunkStore) ReplaceAll(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32, meta IndexMeta) error {
	args := m.Called(ctx, chunks, embeddings, meta)
	return args.Error(0)
}

func (m *MockChunkStore) NearestNeighbors(ctx context.Context, embedding []float32, limit int) ([]domain.RetrievedChunk, error) {
	args := m.Called(ctx, embedding, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievedChunk), args.Error(1)
}

// MockEmbedder is a mock implementation of EmbeddingClient
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func testChunks(n int) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, domain.Chunk{
			ID:       "product_" + string(rune('0'+i)),
			Category: domain.ChunkCategoryProduct,
			Text:     "Product text",
		})
	}
	return chunks
}

func TestBuildOrLoad_ReusesFreshIndex(t *testing.T) {
	ctx := context.Background()
	store := new(MockChunkStore)
	embedder := new(MockEmbedder)

	chunks := testChunks(3)
	store.On("Meta", ctx).Return(&IndexMeta{ChunkCount: 3, Fingerprint: "abc"}, nil)
	store.On("Count", ctx).Return(3, nil)

	idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())
	result, err := idx.BuildOrLoad(ctx, chunks, "abc", false)

	require.NoError(t, err)
	assert.False(t, result.Rebuilt)
	assert.Equal(t, 3, result.ChunkCount)
	assert.Equal(t, IndexStateReady, idx.State())
	assert.Equal(t, 3, idx.ChunkCount())
	embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "ReplaceAll", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBuildOrLoad_RebuildsOnCountMismatch(t *testing.T) {
	ctx := context.Background()
	store := new(MockChunkStore)
	embedder := new(MockEmbedder)

	chunks := testChunks(2)
	store.On("Meta", ctx).Return(&IndexMeta{ChunkCount: 5, Fingerprint: "old"}, nil)
	store.On("Count", ctx).Return(5, nil)
	embedder.On("GenerateEmbedding", ctx, "Product text").Return([]float32{0.1, 0.2}, nil)
	store.On("ReplaceAll", ctx, chunks, mock.Anything, mock.Anything).Return(nil)

	idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())
	result, err := idx.BuildOrLoad(ctx, chunks, "new", false)

	require.NoError(t, err)
	assert.True(t, result.Rebuilt)
	assert.Equal(t, 2, result.ChunkCount)
	embedder.AssertNumberOfCalls(t, "GenerateEmbedding", 2)
}

func TestBuildOrLoad_RebuildsWhenStoreInconsistent(t *testing.T) {
	ctx := context.Background()
	store := new(MockChunkStore)
	embedder := new(MockEmbedder)

	// Metadata claims 3 chunks but the store only holds 1.
	chunks := testChunks(3)
	store.On("Meta", ctx).Return(&IndexMeta{ChunkCount: 3, Fingerprint: "abc"}, nil)
	store.On("Count", ctx).Return(1, nil)
	embedder.On("GenerateEmbedding", ctx, "Product text").Return([]float32{0.1}, nil)
	store.On("ReplaceAll", ctx, chunks, mock.Anything, mock.Anything).Return(nil)

	idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())
	result, err := idx.BuildOrLoad(ctx, chunks, "abc", false)

	require.NoError(t, err)
	assert.True(t, result.Rebuilt)
}

func TestBuildOrLoad_FingerprintStrategy(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultIndexConfig()
	cfg.StalenessStrategy = "fingerprint"

	t.Run("same count different content rebuilds", func(t *testing.T) {
		store := new(MockChunkStore)
		embedder := new(MockEmbedder)

		chunks := testChunks(3)
		store.On("Meta", ctx).Return(&IndexMeta{ChunkCount: 3, Fingerprint: "old"}, nil)
		store.On("Count", ctx).Return(3, nil)
		embedder.On("GenerateEmbedding", ctx, "Product text").Return([]float32{0.1}, nil)
		store.On("ReplaceAll", ctx, chunks, mock.Anything, mock.Anything).Return(nil)

		idx := NewRetrievalIndex(store, embedder, cfg)
		result, err := idx.BuildOrLoad(ctx, chunks, "new", false)

		require.NoError(t, err)
		assert.True(t, result.Rebuilt)
	})

	t.Run("matching fingerprint reuses", func(t *testing.T) {
		store := new(MockChunkStore)
		embedder := new(MockEmbedder)

		chunks := testChunks(3)
		store.On("Meta", ctx).Return(&IndexMeta{ChunkCount: 3, Fingerprint: "same"}, nil)
		store.On("Count", ctx).Return(3, nil)

		idx := NewRetrievalIndex(store, embedder, cfg)
		result, err := idx.BuildOrLoad(ctx, chunks, "same", false)

		require.NoError(t, err)
		assert.False(t, result.Rebuilt)
	})
}

func TestBuildOrLoad_ForceAlwaysRebuilds(t *testing.T) {
	ctx := context.Background()
	store := new(MockChunkStore)
	embedder := new(MockEmbedder)

	chunks := testChunks(1)
	embedder.On("GenerateEmbedding", ctx, "Product text").Return([]float32{0.1}, nil)
	store.On("ReplaceAll", ctx, chunks, mock.Anything, mock.Anything).Return(nil)

	idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())
	result, err := idx.BuildOrLoad(ctx, chunks, "abc", true)

	require.NoError(t, err)
	assert.True(t, result.Rebuilt)
	store.AssertNotCalled(t, "Meta", mock.Anything)
}

func TestBuildOrLoad_EmbedFailureLeavesIndexUninitialized(t *testing.T) {
	ctx := context.Background()
	store := new(MockChunkStore)
	embedder := new(MockEmbedder)

	chunks := testChunks(1)
	store.On("Meta", ctx).Return(nil, nil)
	embedder.On("GenerateEmbedding", ctx, "Product text").Return(nil, errors.New("api unavailable"))

	idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())
	result, err := idx.BuildOrLoad(ctx, chunks, "abc", false)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, IndexStateUninitialized, idx.State())

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeBuild, domainErr.Code)

	store.AssertNotCalled(t, "ReplaceAll", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBuildOrLoad_EmptyKnowledgeBase(t *testing.T) {
	ctx := context.Background()
	store := new(MockChunkStore)
	embedder := new(MockEmbedder)

	store.On("Meta", ctx).Return(nil, nil)
	store.On("ReplaceAll", ctx, []domain.Chunk{}, mock.Anything, mock.Anything).Return(nil)

	idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())
	result, err := idx.BuildOrLoad(ctx, []domain.Chunk{}, "empty", false)

	require.NoError(t, err)
	assert.Equal(t, 0, result.ChunkCount)
	assert.Equal(t, IndexStateReady, idx.State())

	// Queries against an empty ready index return empty without touching
	// the embedding backend.
	results := idx.Retrieve(ctx, "wireless mouse", 3)
	assert.Empty(t, results)
	embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()

	readyIndex := func(store *MockChunkStore, embedder *MockEmbedder) *RetrievalIndex {
		store.On("Meta", ctx).Return(&IndexMeta{ChunkCount: 3, Fingerprint: "abc"}, nil)
		store.On("Count", ctx).Return(3, nil)
		idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())
		_, err := idx.BuildOrLoad(ctx, testChunks(3), "abc", false)
		require.NoError(t, err)
		return idx
	}

	t.Run("returns nearest chunks", func(t *testing.T) {
		store := new(MockChunkStore)
		embedder := new(MockEmbedder)
		idx := readyIndex(store, embedder)

		embedding := []float32{0.5, 0.5}
		embedder.On("GenerateEmbedding", mock.Anything, "wireless mouse price").Return(embedding, nil)
		store.On("NearestNeighbors", mock.Anything, embedding, 2).Return([]domain.RetrievedChunk{
			{Chunk: domain.Chunk{ID: "product_0"}, Score: 0.91},
			{Chunk: domain.Chunk{ID: "product_1"}, Score: 0.42},
		}, nil)

		results := idx.Retrieve(ctx, "wireless mouse price", 2)

		require.Len(t, results, 2)
		assert.Equal(t, "product_0", results[0].Chunk.ID)
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	})

	t.Run("uses configured default k", func(t *testing.T) {
		store := new(MockChunkStore)
		embedder := new(MockEmbedder)
		idx := readyIndex(store, embedder)

		embedding := []float32{0.5}
		embedder.On("GenerateEmbedding", mock.Anything, "return policy").Return(embedding, nil)
		store.On("NearestNeighbors", mock.Anything, embedding, 3).Return([]domain.RetrievedChunk{}, nil)

		results := idx.Retrieve(ctx, "return policy", 0)

		assert.Empty(t, results)
		store.AssertCalled(t, "NearestNeighbors", mock.Anything, embedding, 3)
	})

	t.Run("embedding failure degrades to empty", func(t *testing.T) {
		store := new(MockChunkStore)
		embedder := new(MockEmbedder)
		idx := readyIndex(store, embedder)

		embedder.On("GenerateEmbedding", mock.Anything, "slow query").Return(nil, context.DeadlineExceeded)

		results := idx.Retrieve(ctx, "slow query", 3)

		assert.NotNil(t, results)
		assert.Empty(t, results)
	})

	t.Run("store failure degrades to empty", func(t *testing.T) {
		store := new(MockChunkStore)
		embedder := new(MockEmbedder)
		idx := readyIndex(store, embedder)

		embedding := []float32{0.5}
		embedder.On("GenerateEmbedding", mock.Anything, "query").Return(embedding, nil)
		store.On("NearestNeighbors", mock.Anything, embedding, 3).Return(nil, errors.New("connection reset"))

		results := idx.Retrieve(ctx, "query", 3)

		assert.Empty(t, results)
	})

	t.Run("uninitialized index returns empty", func(t *testing.T) {
		store := new(MockChunkStore)
		embedder := new(MockEmbedder)
		idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())

		results := idx.Retrieve(ctx, "wireless mouse", 3)

		assert.Empty(t, results)
		embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
	})
}

func TestIsRelevant(t *testing.T) {
	ctx := context.Background()

	t.Run("keyword match skips embedding", func(t *testing.T) {
		store := new(MockChunkStore)
		embedder := new(MockEmbedder)
		idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())

		assert.True(t, idx.IsRelevant(ctx, "I want to return my order"))
		embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
	})

	t.Run("semantic match above threshold", func(t *testing.T) {
		store := new(MockChunkStore)
		embedder := new(MockEmbedder)

		store.On("Meta", ctx).Return(&IndexMeta{ChunkCount: 3, Fingerprint: "abc"}, nil)
		store.On("Count", ctx).Return(3, nil)
		idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())
		_, err := idx.BuildOrLoad(ctx, testChunks(3), "abc", false)
		require.NoError(t, err)

		embedding := []float32{0.5}
		embedder.On("GenerateEmbedding", mock.Anything, "tell me about that clicky thing").Return(embedding, nil)
		store.On("NearestNeighbors", mock.Anything, embedding, 1).Return([]domain.RetrievedChunk{
			{Chunk: domain.Chunk{ID: "product_0"}, Score: 0.51},
		}, nil)

		assert.True(t, idx.IsRelevant(ctx, "tell me about that clicky thing"))
	})

	t.Run("semantic score below threshold", func(t *testing.T) {
		store := new(MockChunkStore)
		embedder := new(MockEmbedder)

		store.On("Meta", ctx).Return(&IndexMeta{ChunkCount: 3, Fingerprint: "abc"}, nil)
		store.On("Count", ctx).Return(3, nil)
		idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())
		_, err := idx.BuildOrLoad(ctx, testChunks(3), "abc", false)
		require.NoError(t, err)

		embedding := []float32{0.5}
		embedder.On("GenerateEmbedding", mock.Anything, "what's the weather like").Return(embedding, nil)
		store.On("NearestNeighbors", mock.Anything, embedding, 1).Return([]domain.RetrievedChunk{
			{Chunk: domain.Chunk{ID: "faq_0"}, Score: 0.12},
		}, nil)

		assert.False(t, idx.IsRelevant(ctx, "what's the weather like"))
	})

	t.Run("no keyword and uninitialized index", func(t *testing.T) {
		store := new(MockChunkStore)
		embedder := new(MockEmbedder)
		idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())

		assert.False(t, idx.IsRelevant(ctx, "what's the weather like"))
		embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
	})

	t.Run("embedding failure degrades to not relevant", func(t *testing.T) {
		store := new(MockChunkStore)
		embedder := new(MockEmbedder)

		store.On("Meta", ctx).Return(&IndexMeta{ChunkCount: 3, Fingerprint: "abc"}, nil)
		store.On("Count", ctx).Return(3, nil)
		idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())
		_, err := idx.BuildOrLoad(ctx, testChunks(3), "abc", false)
		require.NoError(t, err)

		embedder.On("GenerateEmbedding", mock.Anything, "something oblique").Return(nil, errors.New("timeout"))

		assert.False(t, idx.IsRelevant(ctx, "something oblique"))
	})

	t.Run("empty utterance", func(t *testing.T) {
		idx := NewRetrievalIndex(new(MockChunkStore), new(MockEmbedder), DefaultIndexConfig())
		assert.False(t, idx.IsRelevant(ctx, ""))
	})
}

func TestIndexState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", IndexStateUninitialized.String())
	assert.Equal(t, "building", IndexStateBuilding.String())
	assert.Equal(t, "ready", IndexStateReady.String())
}

func TestBuildOrLoad_RecordsProgress(t *testing.T) {
	ctx := context.Background()
	store := new(MockChunkStore)
	embedder := new(MockEmbedder)

	chunks := testChunks(2)
	store.On("Meta", ctx).Return(nil, nil)
	embedder.On("GenerateEmbedding", ctx, "Product text").Return([]float32{0.1}, nil)
	store.On("ReplaceAll", ctx, chunks, mock.Anything, mock.Anything).Return(nil)

	idx := NewRetrievalIndex(store, embedder, DefaultIndexConfig())

	var seen []int
	idx.SetProgress(func(done, total int) {
		assert.Equal(t, 2, total)
		seen = append(seen, done)
	})

	_, err := idx.BuildOrLoad(ctx, chunks, "abc", false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestBuildOrLoad_MetaRecordsModelAndTime(t *testing.T) {
	ctx := context.Background()
	store := new(MockChunkStore)
	embedder := new(MockEmbedder)

	cfg := DefaultIndexConfig()
	cfg.EmbeddingModel = "text-embedding-3-small"

	chunks := testChunks(1)
	store.On("Meta", ctx).Return(nil, nil)
	embedder.On("GenerateEmbedding", ctx, "Product text").Return([]float32{0.1}, nil)
	store.On("ReplaceAll", ctx, chunks, mock.Anything, mock.MatchedBy(func(meta IndexMeta) bool {
		return meta.EmbeddingModel == "text-embedding-3-small" &&
			meta.ChunkCount == 1 &&
			time.Since(meta.BuiltAt) < time.Minute
	})).Return(nil)

	idx := NewRetrievalIndex(store, embedder, cfg)
	_, err := idx.BuildOrLoad(ctx, chunks, "abc", false)
	require.NoError(t, err)

	store.AssertExpectations(t)
}
