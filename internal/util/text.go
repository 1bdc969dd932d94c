package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Canonicalize collapses all runs of whitespace to single spaces and trims
// the ends. Fingerprinting and quote matching both run over canonical text,
// so formatting differences between copies of a document do not defeat
// deduplication or verification.
func Canonicalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Fingerprint returns the hex SHA-256 of the canonicalized text. It is the
// deduplication key for sources and chunks.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Canonicalize(text)))
	return hex.EncodeToString(sum[:])
}

// NormalizeName standardizes entity names for resolver keys and dedupe
// comparisons: whitespace folded, uppercased.
func NormalizeName(name string) string {
	return strings.ToUpper(Canonicalize(name))
}
