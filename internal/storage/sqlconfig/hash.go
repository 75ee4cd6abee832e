package sqlconfig

import (
	"crypto/sha256"
	"encoding/hex"
)

// PurposeHash derives the dedup key component from a transaction's
// free-text purpose: the first 16 hex characters of its SHA-256 digest.
// This exact shape is what previously recorded ledgers contain, so neither
// the function nor any normalization may change without orphaning them.
func PurposeHash(purpose string) string {
	sum := sha256.Sum256([]byte(purpose))
	return hex.EncodeToString(sum[:])[:16]
}
