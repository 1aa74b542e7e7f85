package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/despacho-app/despacho/internal/gateway"
)

// Collection is CRUD access to one server collection of T records.
type Collection[T any] struct {
	gw   *gateway.Client
	path string
}

// NewCollection returns a Collection rooted at path (for example "/offices").
func NewCollection[T any](gw *gateway.Client, path string) Collection[T] {
	return Collection[T]{gw: gw, path: path}
}

// Path returns the collection's endpoint path.
func (c Collection[T]) Path() string {
	return c.path
}

// List fetches every record. An empty payload yields an empty, non-nil slice.
func (c Collection[T]) List(ctx context.Context) ([]T, error) {
	var out []T
	if err := c.gw.Call(ctx, http.MethodGet, c.path, nil, &out); err != nil {
		return nil, fmt.Errorf("api: listing %s: %w", c.path, err)
	}

	if out == nil {
		out = []T{}
	}

	return out, nil
}

// Get fetches one record by id.
func (c Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	var out T
	if err := c.gw.Call(ctx, http.MethodGet, c.itemPath(id), nil, &out); err != nil {
		return nil, fmt.Errorf("api: getting %s: %w", c.itemPath(id), err)
	}

	return &out, nil
}

// Create posts rec, whose identifier field must be empty. The server's copy
// is returned; if it sent none, rec itself is.
func (c Collection[T]) Create(ctx context.Context, rec T) (*T, error) {
	out := rec
	if err := c.gw.Call(ctx, http.MethodPost, c.path, rec, &out); err != nil {
		return nil, fmt.Errorf("api: creating in %s: %w", c.path, err)
	}

	return &out, nil
}

// Update replaces the record with id.
func (c Collection[T]) Update(ctx context.Context, id string, rec T) (*T, error) {
	out := rec
	if err := c.gw.Call(ctx, http.MethodPut, c.itemPath(id), rec, &out); err != nil {
		return nil, fmt.Errorf("api: updating %s: %w", c.itemPath(id), err)
	}

	return &out, nil
}

// Delete removes the record with id.
func (c Collection[T]) Delete(ctx context.Context, id string) error {
	if err := c.gw.Call(ctx, http.MethodDelete, c.itemPath(id), nil, nil); err != nil {
		return fmt.Errorf("api: deleting %s: %w", c.itemPath(id), err)
	}

	return nil
}

func (c Collection[T]) itemPath(id string) string {
	return c.path + "/" + url.PathEscape(id)
}
