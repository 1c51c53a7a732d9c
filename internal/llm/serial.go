package llm

import "context"

// Serial allows one generation call in flight at a time. Local inference
// runtimes are single-stream; callers queue here instead of on the backend.
type Serial struct {
	inner Generator
	slot  chan struct{}
}

// NewSerial wraps inner so that calls are serialized.
func NewSerial(inner Generator) *Serial {
	return &Serial{inner: inner, slot: make(chan struct{}, 1)}
}

func (s *Serial) Generate(ctx context.Context, req Request) (string, error) {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-s.slot }()
	return s.inner.Generate(ctx, req)
}
