package catalog

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/cloo-solutions/voicerag/internal/domain"
)

// Fingerprint computes a content hash over the ordered chunk sequence.
// Two extractions of the same knowledge base produce the same
// fingerprint; any change to IDs, ordering, or text changes it.
func Fingerprint(chunks []domain.Chunk) string {
	h := sha256.New()
	for _, c := range chunks {
		h.Write([]byte(c.ID))
		h.Write([]byte{0})
		h.Write([]byte(c.Text))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}
