package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BlobReader reads objects back from storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// ArchiveRecord is the document kept in cold storage for one resolution.
type ArchiveRecord struct {
	Market Market           `json:"market"`
	Result ResolutionResult `json:"result"`
}

// ResultArchiver stores the full record of a resolution in cold storage and
// returns the object path.
type ResultArchiver interface {
	Archive(ctx context.Context, market Market, result ResolutionResult) (string, error)
}
