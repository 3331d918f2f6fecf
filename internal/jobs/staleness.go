package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/voicerag/internal/domain"
)

// ChunkSource re-extracts the current chunk set from the knowledge base.
type ChunkSource func(ctx context.Context) ([]domain.Chunk, string, error)

// StalenessMonitor periodically re-reads the knowledge base and warns
// when the served index no longer matches it. It never rebuilds a live
// index: rebuilds are an exclusive startup operation, so the monitor
// only reports so an operator can restart the service.
type StalenessMonitor struct {
	source            ChunkSource
	servedCount       int
	servedFingerprint string
	warned            bool
}

// NewStalenessMonitor creates a monitor for the given served build.
func NewStalenessMonitor(source ChunkSource, servedCount int, servedFingerprint string) *StalenessMonitor {
	return &StalenessMonitor{
		source:            source,
		servedCount:       servedCount,
		servedFingerprint: servedFingerprint,
	}
}

// Process implements the Processor interface
func (m *StalenessMonitor) Process(ctx context.Context) error {
	chunks, fingerprint, err := m.source(ctx)
	if err != nil {
		return fmt.Errorf("staleness check failed to re-read knowledge base: %w", err)
	}

	stale := len(chunks) != m.servedCount || fingerprint != m.servedFingerprint
	if !stale {
		m.warned = false
		return nil
	}

	// Warn once per change, not on every poll.
	if !m.warned {
		log.Printf("knowledge base has changed (%d chunks, fingerprint %.12s) while index serves %d chunks; restart to rebuild",
			len(chunks), fingerprint, m.servedCount)
		m.warned = true
	}
	return nil
}
