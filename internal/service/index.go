package service

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/cloo-solutions/voicerag/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// IndexMeta is the staleness-detection bookkeeping persisted with the
// chunk vectors.
type IndexMeta struct {
	ChunkCount     int
	Fingerprint    string
	EmbeddingModel string
	BuiltAt        time.Time
}

// ChunkStore defines the persistence interface for the retrieval index.
type ChunkStore interface {
	Count(ctx context.Context) (int, error)
	Meta(ctx context.Context) (*IndexMeta, error)
	ReplaceAll(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32, meta IndexMeta) error
	NearestNeighbors(ctx context.Context, embedding []float32, limit int) ([]domain.RetrievedChunk, error)
}

// IndexState tracks the index handle lifecycle. The handle starts
// uninitialized, moves to building during BuildOrLoad, and serves
// queries only once ready.
type IndexState int32

const (
	IndexStateUninitialized IndexState = iota
	IndexStateBuilding
	IndexStateReady
)

func (s IndexState) String() string {
	switch s {
	case IndexStateBuilding:
		return "building"
	case IndexStateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// IndexConfig holds the tunable retrieval parameters.
type IndexConfig struct {
	// RelevanceThreshold is the minimum cosine similarity for the
	// semantic relevance stage.
	RelevanceThreshold float32
	// Keywords overrides the default domain keyword list when non-empty.
	Keywords []string
	// TopK is the default result count when a caller passes k <= 0.
	TopK int
	// QueryTimeout bounds query-time embedding calls so a slow backend
	// cannot stall a live conversation.
	QueryTimeout time.Duration
	// StalenessStrategy is "count" or "fingerprint".
	StalenessStrategy string
	// EmbeddingModel is recorded in the index metadata.
	EmbeddingModel string
}

// DefaultIndexConfig provides sane defaults for retrieval.
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		RelevanceThreshold: 0.35,
		TopK:               3,
		QueryTimeout:       5 * time.Second,
		StalenessStrategy:  "count",
	}
}

// BuildResult reports what BuildOrLoad did.
type BuildResult struct {
	Rebuilt     bool
	ChunkCount  int
	Fingerprint string
}

// RetrievalIndex answers the two conversation-time questions: is this
// utterance in-domain, and which chunks ground it best. After a
// successful build it is read-only and safe for concurrent queries.
type RetrievalIndex struct {
	store    ChunkStore
	embedder EmbeddingClient
	cfg      IndexConfig
	matcher  *KeywordMatcher

	state atomic.Int32
	count atomic.Int64

	// progress, when set, is invoked after each chunk embedding during a
	// rebuild (CLI progress reporting).
	progress func(done, total int)
}

// NewRetrievalIndex creates an uninitialized index handle.
func NewRetrievalIndex(store ChunkStore, embedder EmbeddingClient, cfg IndexConfig) *RetrievalIndex {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultIndexConfig().TopK
	}
	if cfg.RelevanceThreshold <= 0 {
		cfg.RelevanceThreshold = DefaultIndexConfig().RelevanceThreshold
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultIndexConfig().QueryTimeout
	}
	return &RetrievalIndex{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		matcher:  NewKeywordMatcher(cfg.Keywords),
	}
}

// SetProgress registers a rebuild progress callback.
func (idx *RetrievalIndex) SetProgress(fn func(done, total int)) {
	idx.progress = fn
}

// State returns the current lifecycle state.
func (idx *RetrievalIndex) State() IndexState {
	return IndexState(idx.state.Load())
}

// ChunkCount returns the number of chunks the ready index serves.
func (idx *RetrievalIndex) ChunkCount() int {
	return int(idx.count.Load())
}

// BuildOrLoad makes the index ready. If the persisted store already
// holds a complete build matching the extracted chunks (by count or
// fingerprint, per configuration), it is reused without re-embedding.
// Otherwise every chunk is embedded and the store rebuilt in one
// transaction. Force always rebuilds.
//
// Rebuilds are an exclusive startup operation: BuildOrLoad must finish
// before the index serves queries.
func (idx *RetrievalIndex) BuildOrLoad(ctx context.Context, chunks []domain.Chunk, fingerprint string, force bool) (*BuildResult, error) {
	idx.state.Store(int32(IndexStateBuilding))

	result, err := idx.buildOrLoad(ctx, chunks, fingerprint, force)
	if err != nil {
		idx.state.Store(int32(IndexStateUninitialized))
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeBuild, "retrieval index build failed", err)
	}

	idx.count.Store(int64(result.ChunkCount))
	idx.state.Store(int32(IndexStateReady))
	return result, nil
}

func (idx *RetrievalIndex) buildOrLoad(ctx context.Context, chunks []domain.Chunk, fingerprint string, force bool) (*BuildResult, error) {
	if !force {
		fresh, err := idx.isFresh(ctx, len(chunks), fingerprint)
		if err != nil {
			return nil, err
		}
		if fresh {
			log.Printf("retrieval index already built with %d chunks, reusing", len(chunks))
			return &BuildResult{Rebuilt: false, ChunkCount: len(chunks), Fingerprint: fingerprint}, nil
		}
	}

	embeddings := make([][]float32, 0, len(chunks))
	for i, c := range chunks {
		embedding, err := idx.embedder.GenerateEmbedding(ctx, c.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %s: %w", c.ID, err)
		}
		embeddings = append(embeddings, embedding)
		if idx.progress != nil {
			idx.progress(i+1, len(chunks))
		}
	}

	meta := IndexMeta{
		ChunkCount:     len(chunks),
		Fingerprint:    fingerprint,
		EmbeddingModel: idx.cfg.EmbeddingModel,
		BuiltAt:        time.Now().UTC(),
	}
	if err := idx.store.ReplaceAll(ctx, chunks, embeddings, meta); err != nil {
		return nil, fmt.Errorf("failed to persist index: %w", err)
	}

	log.Printf("retrieval index rebuilt with %d chunks", len(chunks))
	return &BuildResult{Rebuilt: true, ChunkCount: len(chunks), Fingerprint: fingerprint}, nil
}

// isFresh reports whether the persisted index matches the extracted
// chunks. The stored row count is always cross-checked against the
// recorded build count, so an inconsistent store (for example after
// manual edits) triggers a rebuild instead of partial service.
func (idx *RetrievalIndex) isFresh(ctx context.Context, chunkCount int, fingerprint string) (bool, error) {
	meta, err := idx.store.Meta(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read index metadata: %w", err)
	}
	if meta == nil {
		return false, nil
	}

	stored, err := idx.store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count stored chunks: %w", err)
	}
	if stored != meta.ChunkCount {
		log.Printf("index metadata records %d chunks but store holds %d, rebuilding", meta.ChunkCount, stored)
		return false, nil
	}
	if idx.cfg.EmbeddingModel != "" && meta.EmbeddingModel != "" && meta.EmbeddingModel != idx.cfg.EmbeddingModel {
		log.Printf("index was built with model %s, current model is %s, rebuilding", meta.EmbeddingModel, idx.cfg.EmbeddingModel)
		return false, nil
	}

	if idx.cfg.StalenessStrategy == "fingerprint" {
		return meta.Fingerprint == fingerprint, nil
	}
	return meta.ChunkCount == chunkCount, nil
}

// Retrieve returns up to k chunks ordered by descending cosine
// similarity to the utterance. Query-time failures (embedding backend
// timeout, store errors) degrade to an empty result rather than
// interrupting the conversation.
func (idx *RetrievalIndex) Retrieve(ctx context.Context, utterance string, k int) []domain.RetrievedChunk {
	if idx.State() != IndexStateReady || idx.ChunkCount() == 0 || utterance == "" {
		return []domain.RetrievedChunk{}
	}
	if k <= 0 {
		k = idx.cfg.TopK
	}

	embedding, ok := idx.embedUtterance(ctx, utterance)
	if !ok {
		return []domain.RetrievedChunk{}
	}

	results, err := idx.store.NearestNeighbors(ctx, embedding, k)
	if err != nil {
		log.Printf("retrieval query failed, returning empty context: %v", err)
		return []domain.RetrievedChunk{}
	}
	return results
}

// IsRelevant classifies whether an utterance warrants catalog context.
// The keyword stage is a fast path that avoids embedding latency; the
// semantic stage catches paraphrases by comparing the best cosine
// similarity against the configured threshold.
func (idx *RetrievalIndex) IsRelevant(ctx context.Context, utterance string) bool {
	if utterance == "" {
		return false
	}

	if idx.matcher.Matches(utterance) {
		return true
	}

	if idx.State() != IndexStateReady || idx.ChunkCount() == 0 {
		return false
	}

	embedding, ok := idx.embedUtterance(ctx, utterance)
	if !ok {
		return false
	}

	nearest, err := idx.store.NearestNeighbors(ctx, embedding, 1)
	if err != nil {
		log.Printf("relevance query failed, treating as not relevant: %v", err)
		return false
	}
	if len(nearest) == 0 {
		return false
	}
	return nearest[0].Score >= idx.cfg.RelevanceThreshold
}

// embedUtterance embeds a query string under the configured timeout.
func (idx *RetrievalIndex) embedUtterance(ctx context.Context, utterance string) ([]float32, bool) {
	embedCtx, cancel := context.WithTimeout(ctx, idx.cfg.QueryTimeout)
	defer cancel()

	embedding, err := idx.embedder.GenerateEmbedding(embedCtx, utterance)
	if err != nil {
		log.Printf("utterance embedding failed, degrading: %v", err)
		return nil, false
	}
	return embedding, true
}
