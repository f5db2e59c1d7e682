package storage

import (
	"context"
	"strings"

	"github.com/acme-corp/staging-pipeline/internal/ingestion"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = ingestion.ErrNotFound
	// ErrExists is returned by Put when the key is already taken. Artifacts
	// are immutable, so a put never replaces an object.
	ErrExists = errors.New("object already exists")
)

// Store is a flat key/value object store rooted at a bucket or directory.
// Keys use "/" as separator regardless of backend.
type Store interface {
	ingestion.ObjectReader

	// Put writes data under key in a single all-or-nothing operation and
	// returns ErrExists instead of overwriting.
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Verify interface compliance at compile time.
var (
	_ Store = (*S3Store)(nil)
	_ Store = (*FileStore)(nil)
)

// Options configures how Open builds a Store.
type Options struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// Open returns the Store for root: "s3://bucket[/prefix]" selects S3,
// anything else (optionally "file://"-prefixed) is a local directory.
func Open(root string, opts Options) (Store, error) {
	switch {
	case strings.HasPrefix(root, "s3://"):
		return NewS3StoreFromURL(root, opts)
	case strings.HasPrefix(root, "file://"):
		return NewFileStore(strings.TrimPrefix(root, "file://"))
	case root == "":
		return nil, errors.New("storage root is required")
	default:
		return NewFileStore(root)
	}
}

// joinKey joins a root prefix and a key with exactly one separator.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(key, "/")
}
