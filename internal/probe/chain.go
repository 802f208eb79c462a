package probe

import (
	"context"
	"errors"
)

// ErrNoSource is returned by First when every source failed.
var ErrNoSource = errors.New("probe: no source answered")

// Source is one provider in a fallback chain.
type Source[T any] interface {
	Name() string
	Fetch(ctx context.Context) (T, bool)
}

type funcSource[T any] struct {
	name string
	fn   func(ctx context.Context) (T, bool)
}

func (s funcSource[T]) Name() string                        { return s.name }
func (s funcSource[T]) Fetch(ctx context.Context) (T, bool) { return s.fn(ctx) }

// NewSource wraps a function as a named Source.
func NewSource[T any](name string, fn func(ctx context.Context) (T, bool)) Source[T] {
	return funcSource[T]{name: name, fn: fn}
}

// First polls sources in order and returns the first success along with the
// name of the source that produced it.
func First[T any](ctx context.Context, sources ...Source[T]) (T, string, error) {
	for _, s := range sources {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, "", err
		}
		if v, ok := s.Fetch(ctx); ok {
			return v, s.Name(), nil
		}
	}
	var zero T
	return zero, "", ErrNoSource
}
