package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 32-char random hex id, optionally namespaced as "prefix_hex".
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// ShortID returns a 16-char random hex id, used for request correlation.
func ShortID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
