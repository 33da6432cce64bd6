package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/tessel-ai/tessel/pkg/models"
)

// Fingerprint derives the deduplication key for an item: a hash of the
// normalized content, type, and layer. Two writes of the same fact
// land on the same row.
func Fingerprint(layer models.MemoryLayer, itemType, content string) string {
	h := sha256.New()
	h.Write([]byte(string(layer)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToUpper(strings.TrimSpace(itemType))))
	h.Write([]byte{0})
	h.Write([]byte(normalizeContent(content)))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeContent collapses whitespace and case so trivial formatting
// differences do not fork fingerprints.
func normalizeContent(content string) string {
	return strings.ToLower(strings.Join(strings.Fields(content), " "))
}
