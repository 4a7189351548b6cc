// Package sqlite implements the result and audit stores on an embedded
// SQLite database for single-node and development deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/store"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS resolutions (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    market_id         TEXT NOT NULL,
    run_id            TEXT NOT NULL DEFAULT '',
    category          TEXT NOT NULL,
    outcome           TEXT NOT NULL,
    confidence        REAL NOT NULL,
    settlement_action TEXT NOT NULL,
    reasoning         TEXT NOT NULL DEFAULT '',
    flags             TEXT NOT NULL DEFAULT '[]',
    result            TEXT NOT NULL,
    resolved_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_resolutions_market ON resolutions (market_id, resolved_at DESC);
CREATE INDEX IF NOT EXISTS idx_resolutions_action ON resolutions (settlement_action, resolved_at DESC);

CREATE TABLE IF NOT EXISTS audit_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    event      TEXT NOT NULL,
    detail     TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log (created_at DESC);
`

// DB is an open SQLite database holding resolutions and the audit log.
type DB struct {
	db *sql.DB
}

// Open creates or opens the database at path with WAL mode enabled and the
// schema applied. ":memory:" opens a private in-memory database.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite serialises writers; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("sqlite: run migrations: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (1)`); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return nil
}

// Ping checks the database handle.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Resolutions returns the domain.ResolutionStore view of the database.
func (d *DB) Resolutions() *ResolutionStore {
	return &ResolutionStore{db: d.db}
}

// Audit returns the domain.AuditStore view of the database.
func (d *DB) Audit() *AuditStore {
	return &AuditStore{db: d.db}
}

// ResolutionStore implements domain.ResolutionStore.
type ResolutionStore struct {
	db *sql.DB
}

// Insert appends result.
func (s *ResolutionStore) Insert(ctx context.Context, result domain.ResolutionResult) error {
	ib, err := store.InsertResult(store.SQLite, result)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if _, err := ib.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("sqlite: insert resolution %s: %w", result.MarketID, err)
	}
	return nil
}

// Latest returns the newest result for marketID, or domain.ErrNotFound.
func (s *ResolutionStore) Latest(ctx context.Context, marketID string) (domain.ResolutionResult, error) {
	var doc string
	err := store.SelectResults(store.SQLite, domain.ResultFilter{MarketID: marketID, Limit: 1}).
		RunWith(s.db).QueryRowContext(ctx).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ResolutionResult{}, fmt.Errorf("sqlite: resolution %s: %w", marketID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("sqlite: latest resolution %s: %w", marketID, err)
	}
	return store.DecodeResult([]byte(doc))
}

// List returns results matching filter, newest first.
func (s *ResolutionStore) List(ctx context.Context, filter domain.ResultFilter) ([]domain.ResolutionResult, error) {
	rows, err := store.SelectResults(store.SQLite, filter).RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list resolutions: %w", err)
	}
	defer rows.Close()

	results := []domain.ResolutionResult{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlite: scan resolution: %w", err)
		}
		r, err := store.DecodeResult([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list resolutions rows: %w", err)
	}
	return results, nil
}

// AuditStore implements domain.AuditStore.
type AuditStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *AuditStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Log appends an audit entry.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	_, err = store.SQLite.Builder.Insert("audit_log").
		Columns("event", "detail", "created_at").
		Values(event, string(detailJSON), s.clock().UTC().UnixMilli()).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	q := store.SQLite.Builder.Select("id", "event", "detail", "created_at").From("audit_log")
	if opts.Since != nil {
		q = q.Where(sq.GtOrEq{"created_at": opts.Since.UTC().UnixMilli()})
	}
	if opts.Until != nil {
		q = q.Where(sq.LtOrEq{"created_at": opts.Until.UTC().UnixMilli()})
	}
	q = q.OrderBy("created_at DESC", "id DESC")
	if opts.Limit > 0 {
		q = q.Limit(uint64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Offset(uint64(opts.Offset))
	}

	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e      domain.AuditEntry
			detail sql.NullString
			millis int64
		)
		if err := rows.Scan(&e.ID, &e.Event, &detail, &millis); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		e.CreatedAt = time.UnixMilli(millis).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries rows: %w", err)
	}
	return entries, nil
}
