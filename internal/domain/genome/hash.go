package genome

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeHash returns the lowercase hex SHA-256 digest of the genome's
// canonical serialization. Pure and deterministic: the same genome yields
// the same digest across processes and time.
func ComputeHash(g *Genome) (string, error) {
	canonical, err := Canonicalize(g)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the genome's hash and compares it to the stored digest.
// Returns true when the content is intact, false when it has been tampered
// with. Read-side check only: it never writes, so callers that want to log
// the outcome do so in a separate write-capable operation.
func Verify(g *Genome, storedHash string) bool {
	computed, err := ComputeHash(g)
	if err != nil {
		return false
	}
	return computed == storedHash
}
