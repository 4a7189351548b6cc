// Package fetcher holds one data fetcher per deterministic strategy and a
// registry that dispatches a spec to its fetcher. Fetchers never return
// errors: every outcome, including failure, is a domain.FetchResult.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// Fetcher retrieves the data a DeterministicSpec needs from one provider.
type Fetcher interface {
	Fetch(ctx context.Context, spec domain.DeterministicSpec) domain.FetchResult
}

// Clock returns the current time. Fetchers use it to decide between live and
// historical endpoints.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// Registry maps strategy types to fetchers.
type Registry struct {
	fetchers map[domain.StrategyType]Fetcher
	clock    Clock
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(clock Clock, logger *slog.Logger) *Registry {
	return &Registry{
		fetchers: make(map[domain.StrategyType]Fetcher),
		clock:    clock,
		logger:   logger.With(slog.String("component", "fetcher_registry")),
	}
}

// Register binds f to every given strategy, replacing earlier bindings.
func (r *Registry) Register(f Fetcher, strategies ...domain.StrategyType) {
	for _, s := range strategies {
		r.fetchers[s] = f
	}
}

// Lookup returns the fetcher for s.
func (r *Registry) Lookup(s domain.StrategyType) (Fetcher, bool) {
	f, ok := r.fetchers[s]
	return f, ok
}

// Strategies lists the registered strategy types in sorted order.
func (r *Registry) Strategies() []domain.StrategyType {
	out := make([]domain.StrategyType, 0, len(r.fetchers))
	for s := range r.fetchers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fetch dispatches spec to its fetcher. An unregistered strategy or a
// panicking fetcher yields a failed FetchResult.
func (r *Registry) Fetch(ctx context.Context, spec domain.DeterministicSpec) (res domain.FetchResult) {
	f, ok := r.fetchers[spec.StrategyType]
	if !ok {
		return domain.FetchFailed("registry",
			fmt.Sprintf("no fetcher registered for strategy %s", spec.StrategyType),
			map[string]any{"unsupported_strategy": true},
			r.clock.now(),
		)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "fetcher panicked",
				slog.String("strategy", string(spec.StrategyType)),
				slog.Any("panic", p),
			)
			res = domain.FetchFailed("registry", fmt.Sprintf("fetcher panic: %v", p), nil, r.clock.now())
		}
	}()

	start := time.Now()
	res = f.Fetch(ctx, spec)
	r.logger.InfoContext(ctx, "fetch complete",
		slog.String("market_id", spec.MarketID),
		slog.String("strategy", string(spec.StrategyType)),
		slog.String("provider", res.Provider),
		slog.Bool("success", res.Success),
		slog.String("error", res.Error),
		slog.Duration("took", time.Since(start)),
	)
	return res
}

// timestampLayouts are accepted for resolution times.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimestamp parses a resolution time. Values without an offset are UTC.
func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseDate normalises a date or timestamp to a calendar day.
func parseDate(s string) (time.Time, bool) {
	t, ok := parseTimestamp(s)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

func today(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
