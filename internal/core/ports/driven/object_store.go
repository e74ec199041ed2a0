package driven

import (
	"context"
	"time"
)

// Object is a stored document blob.
type Object struct {
	Key      string
	Data     []byte
	MimeType string
	ModTime  time.Time
}

// ObjectInfo describes a stored object without its content.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// ObjectStore reads documents from storage.
type ObjectStore interface {
	// Get returns the object at key or domain.ErrNotFound.
	Get(ctx context.Context, key string) (*Object, error)

	// List returns every object key under the store root.
	List(ctx context.Context) ([]ObjectInfo, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
