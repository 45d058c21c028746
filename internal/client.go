package internal

import "crypto/sha256"

// HashClientValue digests a client IP or User-Agent before it is stored on a
// session record.
func HashClientValue(v string) [32]byte {
	return sha256.Sum256([]byte(v))
}
