// Package storage archives uploaded statement files.
package storage

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
)

// FileInfo describes an archived file.
type FileInfo struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Storage keeps uploaded files under opaque keys.
type Storage interface {
	// Put stores the contents of r under key, replacing any previous file.
	Put(ctx context.Context, key, contentType string, r io.Reader) (*FileInfo, error)

	// Get opens the file stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, *FileInfo, error)

	// Delete removes the file stored under key. Missing files are not an error.
	Delete(ctx context.Context, key string) error
}

// ImportKey returns the archive key of an import's upload:
// <user>/<import>/<filename>.
func ImportKey(userID, importID uuid.UUID, filename string) string {
	return path.Join(userID.String(), importID.String(), sanitizeFilename(filename))
}
