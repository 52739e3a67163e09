package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound reports a key with no stored object behind it.
var ErrNotFound = errors.New("object not found")

// ErrPresignUnsupported reports a backend without presigned URL support.
var ErrPresignUnsupported = errors.New("presigned urls not supported by this store")

// Store defines the contract for saving and retrieving binary objects.
// Keys are opaque to the store; callers own the path convention.
type Store interface {
	// Put streams the reader contents under key and returns the byte count.
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	// Get opens the object for reading along with its size.
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	// Stat returns the object size without opening the body. Absent keys
	// report ErrNotFound.
	Stat(ctx context.Context, key string) (int64, error)
	// Delete removes the object. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-bounded URL granting read access to key.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, time.Time, error)
}
