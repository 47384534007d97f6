package command

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint identifies a CSV payload: the hex blake2b-256 of its content
// with line endings normalized to \n and surrounding whitespace trimmed, so
// the same file saved on another OS fingerprints the same.
func Fingerprint(payload string) string {
	normalized := strings.ReplaceAll(payload, "\r\n", "\n")
	normalized = strings.TrimSpace(normalized)
	sum := blake2b.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
