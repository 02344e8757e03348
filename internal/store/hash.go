package store

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash computes the content identity (ETag) for a payload: the
// SHA-256 digest rendered as lowercase hex. The same bytes always produce
// the same token, across processes and restarts, so identical payloads are
// detectable by comparing ETags alone.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
