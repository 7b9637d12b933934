//go:build !cgo

package similarity

import (
	"context"
	"errors"
)

// ErrFastEmbedUnavailable is returned by binaries built without cgo.
var ErrFastEmbedUnavailable = errors.New("fastembed: not available in builds without cgo")

// FastEmbedder is unavailable without cgo.
type FastEmbedder struct{}

// NewFastEmbedder always fails without cgo.
func NewFastEmbedder(EmbedderConfig) (*FastEmbedder, error) {
	return nil, ErrFastEmbedUnavailable
}

// Embed implements Embedder.
func (*FastEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

// Close is a no-op.
func (*FastEmbedder) Close() error {
	return nil
}
