// Package store adapts object storage (S3, Azure Blob, local disk) behind a
// single interface: recursive listing with sizes, streamed reads, buffered
// writes, and bulk deletes. Backends register by name.
package store

import (
	"context"
	"fmt"
	"io"

	"github.com/chtzvt/rewardd/internal/secrets"
)

// Object is one stored object as reported by List.
type Object struct {
	Key  string
	Size int64
}

// Store is the interface for object-store backends (disk, s3, etc).
type Store interface {
	// List returns all objects under prefix, with sizes.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Get opens the object at key for streamed reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put writes body as the object at key. Objects become visible only
	// when complete; readers never observe partial writes.
	Put(ctx context.Context, key string, body io.Reader) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// Factory builds a Store from backend options. Credentials come from the
// secrets store when one is configured.
type Factory func(opts map[string]interface{}, sec *secrets.Store) (Store, error)

var registry = make(map[string]Factory)

func Register(name string, f Factory) {
	registry[name] = f
}

func ForName(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

// New builds the named backend.
func New(name string, opts map[string]interface{}, sec *secrets.Store) (Store, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("storage backend not found: %s", name)
	}
	return f(opts, sec)
}
