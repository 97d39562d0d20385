// Package signature compresses embeddings into fixed-size signatures and
// compares them.
package signature

import (
	"math"

	"github.com/pablobfonseca/go-photo-organizer/apperrors"
)

// Dimensions is the length of every signature.
const Dimensions = 8

// Signature is the per-segment mean of an embedding.
type Signature []float64

// Compute splits embedding into Dimensions contiguous segments of
// floor(len/Dimensions) values and averages each one. Trailing values that do
// not fill a whole segment are ignored.
func Compute(embedding []float64) (Signature, error) {
	if len(embedding) < Dimensions {
		return nil, apperrors.NewInvalidEmbeddingError(len(embedding), Dimensions)
	}

	segment := len(embedding) / Dimensions
	sig := make(Signature, Dimensions)
	for i := range Dimensions {
		var sum float64
		for _, v := range embedding[i*segment : (i+1)*segment] {
			sum += v
		}
		sig[i] = sum / float64(segment)
	}
	return sig, nil
}

// Similarity returns the cosine similarity of a and b. It is 0 when the
// lengths differ or either vector has zero norm.
func Similarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
