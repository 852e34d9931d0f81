// Package embedding turns text into vectors for the hybrid executor and the
// embedding worker.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// Provider is the capability interface the hybrid executor and embedding
// worker depend on.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// HashVector produces a deterministic, non-semantic vector of the given
// dimension from text. It exists purely so a downstream vector-store call
// does not fail when the embedding provider is unavailable; callers are
// expected to record a warning alongside its use.
func HashVector(dimension int, text string) []float32 {
	out := make([]float32, dimension)
	if dimension <= 0 {
		return out
	}

	block := sha256.Sum256([]byte(text))
	for i := range out {
		// Re-hash with a counter appended once the 32-byte digest is
		// exhausted, so dimensions beyond 8 still get independent bits
		// rather than repeating the same 8 uint32s.
		if i > 0 && i%8 == 0 {
			round := sha256.Sum256(append(block[:], byte(i/8)))
			block = round
		}
		offset := (i % 8) * 4
		bits := binary.BigEndian.Uint32(block[offset : offset+4])
		// Map into [-1, 1] the way a normalized embedding component would
		// range, rather than leaving raw hash magnitude.
		out[i] = float32(bits)/float32(1<<31) - 1
	}
	return out
}
