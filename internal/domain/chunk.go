package domain

// ChunkCategory identifies the knowledge-base section a chunk came from.
type ChunkCategory string

const (
	ChunkCategoryProduct  ChunkCategory = "product"
	ChunkCategoryOrder    ChunkCategory = "order"
	ChunkCategoryPolicy   ChunkCategory = "policy"
	ChunkCategoryFAQ      ChunkCategory = "faq"
	ChunkCategoryScenario ChunkCategory = "scenario"
)

// Chunk is the atomic retrievable unit: a self-contained text passage
// derived from one catalog record. Chunks are immutable once extracted
// and are replaced wholesale on re-extraction.
type Chunk struct {
	ID       string
	Category ChunkCategory
	Text     string
	Metadata map[string]string
}

// RetrievedChunk pairs a chunk with its similarity score for a query.
type RetrievedChunk struct {
	Chunk Chunk
	Score float32
}

// NewChunk creates a new Chunk instance
func NewChunk(id string, category ChunkCategory, text string, metadata map[string]string) Chunk {
	return Chunk{
		ID:       id,
		Category: category,
		Text:     text,
		Metadata: metadata,
	}
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return NewDomainError(ErrCodeValidation, "chunk cannot be nil")
	}
	if c.ID == "" {
		return NewDomainError(ErrCodeValidation, "chunk ID is required")
	}
	if c.Text == "" {
		return NewDomainError(ErrCodeValidation, "chunk text is required")
	}
	if !isValidChunkCategory(c.Category) {
		return ErrInvalidChunkCategory
	}
	return nil
}

// isValidChunkCategory checks if a ChunkCategory is valid
func isValidChunkCategory(c ChunkCategory) bool {
	switch c {
	case ChunkCategoryProduct, ChunkCategoryOrder, ChunkCategoryPolicy,
		ChunkCategoryFAQ, ChunkCategoryScenario:
		return true
	}
	return false
}
