// Package store defines the persistence contract for the search core and its
// backend variants. One ContentStore interface, four implementations
// (sqlite, badger, sharded flat files, in-memory), selected by an
// ordered-attempt initializer.
package store

import (
	"context"
	"errors"

	"github.com/hoshizora/tansaku/internal/models"
)

var (
	// ErrNotFound indicates the requested key or path was not found.
	ErrNotFound = errors.New("not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")

	// ErrNoBackend indicates no configured backend could be initialized.
	ErrNoBackend = errors.New("no storage backend available")
)

// Stats summarizes one backend's footprint.
type Stats struct {
	Backend   string `json:"backend"`
	Keys      int    `json:"keys"`
	DiskBytes int64  `json:"disk_bytes"`
}

// ContentStore is the durable key/value + blob capability set the search
// core persists through. All variants satisfy the same contract so tests run
// uniformly against each.
type ContentStore interface {
	// Raw content blobs keyed by path, used for snippet extraction.
	Get(ctx context.Context, path string) ([]byte, error)
	Set(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	Clear(ctx context.Context) error

	// Per-path index metadata consulted by change detection.
	SetMetadata(ctx context.Context, path string, meta *models.IndexMetadata) error
	GetMetadata(ctx context.Context, path string) (*models.IndexMetadata, error)
	AllMetadata(ctx context.Context) (map[string]*models.IndexMetadata, error)
	DeleteMetadata(ctx context.Context, path string) error
	ClearMetadata(ctx context.Context) error

	// Usage stats blob.
	SetUsageStats(ctx context.Context, data []byte) error
	GetUsageStats(ctx context.Context) ([]byte, error)

	// Full index snapshot.
	SaveSearchIndex(ctx context.Context, snap *models.Snapshot) error
	LoadSearchIndex(ctx context.Context) (*models.Snapshot, error)

	Stats(ctx context.Context) (Stats, error)
	Name() string
	Close() error
}
