// Package cache is the content-addressed output cache. A page's cache key
// fingerprints both the source bytes and every parameter that can change
// the page's output, so parameter drift invalidates entries by
// construction rather than by bookkeeping.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// StageParams is one stage's contribution to a page fingerprint: its
// name, whether it runs, and the parameters that shape its output.
type StageParams struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Params  any    `json:"params,omitempty"`
}

// Fingerprint derives the cache key for a page: the source content hash
// folded with a hash of the ordered stage parameter list. Changing any
// byte of the source or any parameter of any listed stage yields a
// different key.
func Fingerprint(source []byte, stages []StageParams) (string, error) {
	srcSum := sha256.Sum256(source)

	data, err := json.Marshal(stages)
	if err != nil {
		return "", fmt.Errorf("failed to serialize stage parameters: %w", err)
	}
	paramSum := sha256.Sum256(data)

	var key [sha256.Size]byte
	for i := range key {
		key[i] = srcSum[i] ^ paramSum[i]
	}
	return hex.EncodeToString(key[:]), nil
}

// SourceHash returns the hex content hash of the source bytes alone,
// recorded in entry metadata for inspection.
func SourceHash(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}
