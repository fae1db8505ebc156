package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// HashProvider derives vectors from the text itself, with no model behind it.
// The same text always yields the same vector, which makes it usable both as
// an offline fallback and as the provider in tests.
type HashProvider struct {
	Dim int
}

var _ Provider = (*HashProvider)(nil)

func (p *HashProvider) dim() int {
	if p.Dim <= 0 {
		return 64
	}
	return p.Dim
}

func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()
	vec := make([]float32, p.dim())
	var norm float64
	for i := range vec {
		// xorshift64
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		vec[i] = float32(int64(state%2000)-1000) / 1000
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
