package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/store"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

// NewResolutionStore creates a new ResolutionStore backed by the given pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

// Insert appends result. Earlier results for the same market are kept.
func (s *ResolutionStore) Insert(ctx context.Context, result domain.ResolutionResult) error {
	ib, err := store.InsertResult(store.Postgres, result)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	query, args, err := ib.ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: insert resolution %s: %w", result.MarketID, err)
	}
	return nil
}

// Latest returns the newest result for marketID, or domain.ErrNotFound.
func (s *ResolutionStore) Latest(ctx context.Context, marketID string) (domain.ResolutionResult, error) {
	query, args, err := store.SelectResults(store.Postgres, domain.ResultFilter{MarketID: marketID, Limit: 1}).ToSql()
	if err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("postgres: build latest: %w", err)
	}

	var doc []byte
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ResolutionResult{}, fmt.Errorf("postgres: resolution %s: %w", marketID, domain.ErrNotFound)
		}
		return domain.ResolutionResult{}, fmt.Errorf("postgres: latest resolution %s: %w", marketID, err)
	}
	return store.DecodeResult(doc)
}

// List returns results matching filter, newest first.
func (s *ResolutionStore) List(ctx context.Context, filter domain.ResultFilter) ([]domain.ResolutionResult, error) {
	query, args, err := store.SelectResults(store.Postgres, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build list: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolutions: %w", err)
	}
	defer rows.Close()

	results := []domain.ResolutionResult{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("postgres: scan resolution: %w", err)
		}
		r, err := store.DecodeResult(doc)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list resolutions rows: %w", err)
	}
	return results, nil
}
