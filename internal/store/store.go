// Package store is the Finding Store: an object store holding findings
// documents and remediation reports as immutable JSON objects. Production
// uses S3; the filesystem and in-memory backends serve offline runs and
// tests.
package store

import (
	"context"
	"errors"
)

// ContentTypeJSON is attached to every object written by this package.
const ContentTypeJSON = "application/json"

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore stores opaque objects addressed by bucket and key.
// Writes are whole-object; objects are never updated in place.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}
