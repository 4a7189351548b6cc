package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ResolutionStore persists every emitted ResolutionResult. It is append-only:
// re-resolving a market adds a row rather than replacing one.
type ResolutionStore interface {
	Insert(ctx context.Context, result ResolutionResult) error
	Latest(ctx context.Context, marketID string) (ResolutionResult, error)
	List(ctx context.Context, filter ResultFilter) ([]ResolutionResult, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
