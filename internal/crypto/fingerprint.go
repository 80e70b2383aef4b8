package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint returns a short hex fingerprint of a public key.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}

// PartitionKey renders a key for display: 4-character groups separated by
// single spaces, with the final group space-padded to 4 characters when the
// key length is not a multiple of 4.
func PartitionKey(key string) string {
	if key == "" {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(key); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := i + 4
		if end > len(key) {
			b.WriteString(key[i:])
			b.WriteString(strings.Repeat(" ", end-len(key)))
		} else {
			b.WriteString(key[i:end])
		}
	}
	return b.String()
}
