// Package storage provides content-addressable storage for pagepress artifacts.
package storage

import (
	"context"
	"time"
)

// ObjectStore provides content-addressable storage for run artifacts.
// Objects are stored by their content hash, enabling deduplication: deploying
// the same build output twice reuses the stored archive.
type ObjectStore interface {
	// Put stores an object and returns its content hash.
	// If the object already exists, it returns the existing hash without writing.
	Put(ctx context.Context, obj *Object) (hash string, err error)

	// Get retrieves an object by its content hash.
	// Returns ErrNotFound if the object doesn't exist.
	Get(ctx context.Context, hash string) (*Object, error)

	// Exists checks if an object with the given hash exists.
	Exists(ctx context.Context, hash string) (bool, error)

	// Delete removes an object by its content hash.
	// Returns ErrNotFound if the object doesn't exist.
	Delete(ctx context.Context, hash string) error

	// List returns all object hashes matching the given type filter.
	// If objectType is empty, returns all objects.
	List(ctx context.Context, objectType ObjectType) ([]string, error)

	// AddRunRef associates a run ID with the object hashes it produced.
	AddRunRef(runID string, hashes []string) error

	// GetRunRef returns the object hashes recorded for a run ID,
	// or nil when the run is unknown.
	GetRunRef(runID string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Object represents a stored artifact with its metadata.
type Object struct {
	// Hash is the content hash (SHA256) of the data.
	Hash string

	// Type identifies the kind of object.
	Type ObjectType

	// Size is the size of the data in bytes.
	Size int64

	// Data is the object content.
	Data []byte

	// Metadata stores additional key-value pairs.
	Metadata Metadata
}

// Metadata stores object metadata.
type Metadata struct {
	// CreatedAt is when the object was first stored.
	CreatedAt time.Time

	// LastAccessed is when the object was last retrieved.
	LastAccessed time.Time

	// RefCount tracks how many runs reference this object.
	// Used for garbage collection.
	RefCount int

	// Custom allows storage-specific metadata.
	Custom map[string]string
}

// ObjectType identifies the kind of stored object.
type ObjectType string

const (
	// ObjectTypeArchive represents a packaged site archive (tar.gz).
	ObjectTypeArchive ObjectType = "archive"

	// ObjectTypeManifest represents an artifact manifest.
	ObjectTypeManifest ObjectType = "manifest"

	// ObjectTypeReport represents a stored run report.
	ObjectTypeReport ObjectType = "report"
)

// ErrNotFound is returned when an object doesn't exist.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	return "object not found: " + e.Hash
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}
