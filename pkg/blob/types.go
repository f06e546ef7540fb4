// Package blob stores opaque archive objects under slash-separated keys.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get and Delete for a missing key.
var ErrNotFound = errors.New("blob not found")

// Store holds journal archives.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}
