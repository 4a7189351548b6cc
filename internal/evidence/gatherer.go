package evidence

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// Gatherer executes an EvidencePlan against every configured provider.
type Gatherer struct {
	providers []Provider
	now       func() time.Time
	logger    *slog.Logger
}

// NewGatherer creates a Gatherer. now may be nil.
func NewGatherer(providers []Provider, now func() time.Time, logger *slog.Logger) *Gatherer {
	if now == nil {
		now = time.Now
	}
	return &Gatherer{
		providers: providers,
		now:       now,
		logger:    logger.With(slog.String("component", "evidence_gatherer")),
	}
}

// Gather runs every query against every provider concurrently. A failing
// provider call contributes no sources and never fails the corpus. Sources
// are kept in query then provider order and deduplicated by URL.
func (g *Gatherer) Gather(ctx context.Context, plan domain.EvidencePlan) domain.EvidenceCorpus {
	now := g.now().UTC()
	window := ResolveWindow(plan.TimeWindow, now)

	n := len(plan.SearchQueries) * len(g.providers)
	results := make([][]domain.EvidenceSource, n)

	var eg errgroup.Group
	for qi, query := range plan.SearchQueries {
		for pi, p := range g.providers {
			slot := qi*len(g.providers) + pi
			eg.Go(func() error {
				results[slot] = g.search(ctx, p, query, window)
				return nil
			})
		}
	}
	_ = eg.Wait()

	var all []domain.EvidenceSource
	for _, r := range results {
		all = append(all, r...)
	}
	sources := Dedup(all)

	g.logger.InfoContext(ctx, "evidence gathered",
		slog.String("market_id", plan.MarketID),
		slog.Int("queries", len(plan.SearchQueries)),
		slog.Int("providers", len(g.providers)),
		slog.Int("raw", len(all)),
		slog.Int("sources", len(sources)),
		slog.String("from", window.From),
		slog.String("to", window.To),
	)

	queries := append([]string(nil), plan.SearchQueries...)
	if queries == nil {
		queries = []string{}
	}
	return domain.EvidenceCorpus{
		QueriesUsed: queries,
		Sources:     sources,
		GatheredAt:  now,
		Window:      window,
	}
}

func (g *Gatherer) search(ctx context.Context, p Provider, query string, window domain.DateRange) (out []domain.EvidenceSource) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.ErrorContext(ctx, "provider panicked",
				slog.String("provider", p.Name()),
				slog.String("query", query),
				slog.Any("panic", r),
			)
			out = nil
		}
	}()

	sources, err := p.Search(ctx, query, window)
	if err != nil {
		g.logger.WarnContext(ctx, "provider search failed",
			slog.String("provider", p.Name()),
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return nil
	}
	for i := range sources {
		if sources[i].Provider == "" {
			sources[i].Provider = p.Name()
		}
	}
	return sources
}
