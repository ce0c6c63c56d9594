//go:build !cgo

package embeddings

import (
	"context"
	"errors"
)

// ErrFastEmbedNotAvailable is returned when the binary was built without CGO,
// which the local ONNX runtime requires.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support)")

// fastEmbedProvider is a stub for non-CGO builds.
type fastEmbedProvider struct{}

func newFastEmbedProvider(_ Config) (*fastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *fastEmbedProvider) Generate(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *fastEmbedProvider) Dimension() int { return 0 }

func (p *fastEmbedProvider) Close() error { return nil }
