// Package storage defines the object-storage port used for skills,
// plans, and other durable text blobs, plus local implementations.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the narrow persistence port. Keys are "<bucket>/<path>"
// style relative paths within a bucket.
type Store interface {
	// PutText writes a text object, replacing any existing content.
	PutText(ctx context.Context, bucket, key, content string) error

	// Get returns the object's content or ErrNotFound.
	Get(ctx context.Context, bucket, key string) (string, error)

	// DeleteObject removes an object. Deleting a missing object is not
	// an error.
	DeleteObject(ctx context.Context, bucket, key string) error

	// List returns the keys under a bucket, optionally filtered by
	// prefix, in lexical order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}
