package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/textmatch"
)

// HashingEmbedder produces deterministic bag-of-words vectors by hashing tokens into
// a fixed number of buckets. Texts sharing words get a positive cosine similarity,
// which is enough for offline development and tests.
type HashingEmbedder struct {
	dimension int
}

// NewHashingEmbedder creates a hashing embedder.
func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashingEmbedder{dimension: dimension}
}

// Embed generates one vector per text.
func (h *HashingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.vector(text)
	}
	return out, nil
}

// EmbedSingle generates a vector for a single text.
func (h *HashingEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

// Model returns the embedder name.
func (h *HashingEmbedder) Model() string {
	return "hashing-bow"
}

// Dimension returns the vector size.
func (h *HashingEmbedder) Dimension() int {
	return h.dimension
}

func (h *HashingEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dimension)
	for _, tok := range textmatch.Tokens(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		v[int(f.Sum32()%uint32(h.dimension))] += 1
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}
