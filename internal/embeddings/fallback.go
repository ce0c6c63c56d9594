package embeddings

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// fallback wraps a backend provider so that Generate never fails.
//
// Backend calls are bounded by the configured timeout; any error (including
// timeout and caller cancellation racing the backend) resolves to the
// deterministic generator with a logged warning.
type fallback struct {
	backend Provider // nil when the backend could not be constructed
	det     *Deterministic
	timeout time.Duration
	logger  *zap.Logger
}

func newFallback(backend Provider, dimension int, timeout time.Duration, logger *zap.Logger) *fallback {
	return &fallback{
		backend: backend,
		det:     NewDeterministic(dimension),
		timeout: timeout,
		logger:  logger,
	}
}

// Generate returns the backend's embedding, or a deterministic vector when
// the backend is missing or errors.
func (f *fallback) Generate(ctx context.Context, text string) ([]float32, error) {
	if f.backend == nil {
		return f.det.Generate(ctx, text)
	}

	callCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	vec, err := f.backend.Generate(callCtx, text)
	if err != nil {
		f.logger.Warn("embedding backend call failed, using deterministic fallback vector",
			zap.Int("text_len", len(text)),
			zap.Error(err),
		)
		return f.det.Generate(ctx, text)
	}
	return vec, nil
}

// Dimension returns the configured vector dimension.
func (f *fallback) Dimension() int {
	return f.det.Dimension()
}

// Close closes the wrapped backend, if any.
func (f *fallback) Close() error {
	if f.backend != nil {
		return f.backend.Close()
	}
	return nil
}

var _ Provider = (*fallback)(nil)
