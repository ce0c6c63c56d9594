package embeddings

import (
	"context"
	"math/rand"
)

// Deterministic generates pseudo-random vectors seeded from the input text.
//
// The same text always yields the same vector within a process, which keeps
// repeated inserts of identical content and tests stable. The vectors carry
// no semantic meaning.
type Deterministic struct {
	dimension int
}

// NewDeterministic creates a deterministic generator with the given dimension.
func NewDeterministic(dimension int) *Deterministic {
	return &Deterministic{dimension: dimension}
}

// Generate returns a vector of dimension floats in [0,1), seeded from the
// sum of the text's character codes. It never fails.
func (d *Deterministic) Generate(_ context.Context, text string) ([]float32, error) {
	var seed int64
	for _, r := range text {
		seed += int64(r)
	}

	rng := rand.New(rand.NewSource(seed))
	vec := make([]float32, d.dimension)
	for i := range vec {
		vec[i] = rng.Float32()
	}
	return vec, nil
}

// Dimension returns the configured vector dimension.
func (d *Deterministic) Dimension() int {
	return d.dimension
}

// Close is a no-op.
func (d *Deterministic) Close() error {
	return nil
}

var _ Provider = (*Deterministic)(nil)
