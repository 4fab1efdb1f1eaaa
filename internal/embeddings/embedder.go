// Package embeddings provides a deterministic local embedding model and a
// pgvector-backed store for evidence embeddings.
package embeddings

import (
	"crypto/sha256"
	"math"
	"strings"

	"github.com/pgvector/pgvector-go"
)

const (
	// ModelName identifies the embedding model. Vector dimensions must stay
	// stable for rows produced under the same model name.
	ModelName = "hash-embed-128"
	// Dim is the embedding vector length.
	Dim = 128
)

// Embed produces a deterministic pseudo-embedding by repeating a SHA-256
// digest of the text to fill the vector, then L2-normalizing so pgvector
// distances are meaningful. Empty or whitespace-only text yields the zero
// vector.
func Embed(text string) pgvector.Vector {
	text = strings.TrimSpace(text)
	if text == "" {
		return pgvector.NewVector(make([]float32, Dim))
	}

	digest := sha256.Sum256([]byte(text))
	values := make([]float64, 0, Dim)

	for len(values) < Dim {
		for _, b := range digest {
			values = append(values, (float64(b)/255.0)*2-1)
			if len(values) == Dim {
				break
			}
		}
		digest = sha256.Sum256(digest[:])
	}

	var sum float64
	for _, v := range values {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1.0
	}

	out := make([]float32, Dim)
	for i, v := range values {
		out[i] = float32(v / norm)
	}

	return pgvector.NewVector(out)
}
