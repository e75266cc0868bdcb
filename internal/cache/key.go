// Package cache implements the result cache for expensive remote calls: a
// bounded in-memory LRU in front of an optional file-per-entry persistent
// tier, with TTL expiry checked on every read.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// Descriptor identifies one expensive call. Only the fields that affect the
// semantic content of the response participate in the key: MaxTokens merely
// truncates output, so two requests differing only in MaxTokens share an
// entry.
type Descriptor struct {
	Prompt      string
	System      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Key returns the deterministic content hash for the descriptor. Each field
// is length-prefixed so concatenation ambiguity cannot collide two distinct
// descriptors.
func (d Descriptor) Key() string {
	h := sha256.New()
	writeField(h, d.Prompt)
	writeField(h, d.System)
	writeField(h, d.Model)
	writeField(h, strconv.FormatFloat(d.Temperature, 'f', 6, 64))
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h interface{ Write([]byte) (int, error) }, s string) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
	_, _ = h.Write(lenBuf[:])
	_, _ = h.Write([]byte(s))
}
