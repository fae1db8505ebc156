// Package embedding treats the embedding model as an opaque text → vector
// function behind the Provider interface.
package embedding

import (
	"context"
	"math"
)

type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Cosine returns the cosine similarity of two vectors, or 0 when either is
// empty, zero-length in magnitude, or the dimensions disagree.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// UpdateMean folds one vector into a running mean without revisiting prior
// samples: mean' = mean + (v - mean) / n, where n counts v.
func UpdateMean(mean, v []float32, n int) []float32 {
	if n <= 1 || len(mean) != len(v) {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	out := make([]float32, len(mean))
	for i := range mean {
		out[i] = mean[i] + (v[i]-mean[i])/float32(n)
	}
	return out
}
