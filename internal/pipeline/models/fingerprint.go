package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint returns the stable content hash used as a source id and cache
// key. Byte-identical payloads always map to the same fingerprint.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// FingerprintString fingerprints link sources by their URL.
func FingerprintString(s string) string {
	return Fingerprint([]byte(s))
}

// CombinedFingerprint derives a session-level key from a set of source
// fingerprints. Order of the input does not matter.
func CombinedFingerprint(fingerprints []string) string {
	sorted := make([]string, len(fingerprints))
	copy(sorted, fingerprints)
	sort.Strings(sorted)
	return FingerprintString(strings.Join(sorted, "||"))
}
