// Package store holds the query shapes shared by the result store drivers.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// DefaultListLimit caps listings that do not set a limit.
const DefaultListLimit = 100

// Dialect pairs a placeholder style with the driver's timestamp encoding.
type Dialect struct {
	Builder sq.StatementBuilderType
	Time    func(time.Time) any
}

// Postgres binds $n placeholders and native timestamps.
var Postgres = Dialect{
	Builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	Time:    func(t time.Time) any { return t.UTC() },
}

// SQLite binds ? placeholders and stores timestamps as unix milliseconds so
// they order numerically.
var SQLite = Dialect{
	Builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	Time:    func(t time.Time) any { return t.UTC().UnixMilli() },
}

// ResultColumns is the insert column order used by InsertResult.
var ResultColumns = []string{
	"market_id", "run_id", "category", "outcome", "confidence",
	"settlement_action", "reasoning", "flags", "result", "resolved_at",
}

// InsertResult builds the insert for one result row. The full result is kept
// as a JSON document next to the indexed scalar columns.
func InsertResult(d Dialect, r domain.ResolutionResult) (sq.InsertBuilder, error) {
	flags := r.Flags
	if flags == nil {
		flags = []string{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("store: marshal flags: %w", err)
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("store: marshal result: %w", err)
	}
	return d.Builder.Insert("resolutions").
		Columns(ResultColumns...).
		Values(
			r.MarketID, r.RunID, string(r.Category), string(r.Outcome), r.Confidence,
			string(r.SettlementAction), r.Reasoning, string(flagsJSON), string(doc), d.Time(r.ResolvedAt),
		), nil
}

// SelectResults builds the filtered listing query, newest first. It selects
// only the JSON document column.
func SelectResults(d Dialect, f domain.ResultFilter) sq.SelectBuilder {
	q := d.Builder.Select("result").From("resolutions")
	if f.MarketID != "" {
		q = q.Where(sq.Eq{"market_id": f.MarketID})
	}
	if f.Category != "" {
		q = q.Where(sq.Eq{"category": string(f.Category)})
	}
	if f.Action != "" {
		q = q.Where(sq.Eq{"settlement_action": string(f.Action)})
	}
	if f.Since != nil {
		q = q.Where(sq.GtOrEq{"resolved_at": d.Time(*f.Since)})
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q = q.OrderBy("resolved_at DESC", "id DESC").Limit(uint64(limit))
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

// DecodeResult unmarshals a stored result document.
func DecodeResult(doc []byte) (domain.ResolutionResult, error) {
	var r domain.ResolutionResult
	if err := json.Unmarshal(doc, &r); err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("store: decode result: %w", err)
	}
	if r.Flags == nil {
		r.Flags = []string{}
	}
	return r, nil
}
