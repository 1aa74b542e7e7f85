package session

import (
	"context"

	"github.com/despacho-app/despacho/internal/gateway"
)

// Degrade runs fetch and substitutes fallback for any failure. Expected
// failures (denied, not found) are swallowed silently; anything else is
// passed to onUnexpected first, which may be nil.
func Degrade[T any](ctx context.Context, fetch func(context.Context) (T, error), fallback T, onUnexpected func(error)) T {
	v, err := fetch(ctx)
	if err == nil {
		return v
	}

	if !gateway.IsExpected(err) && onUnexpected != nil {
		onUnexpected(err)
	}

	return fallback
}
