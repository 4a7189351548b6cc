// Package pipeline orchestrates a market through classification, the track
// chosen for it and the settlement decision. Every invocation yields exactly
// one ResolutionResult: step failures and panics become MALFORMED results
// flagged PIPELINE_ERROR instead of escaping to the caller.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// Classifier chooses the resolution track for a market.
type Classifier interface {
	Classify(ctx context.Context, m domain.Market) (domain.Classification, error)
}

// Parser turns a data-resolvable market into a spec or a rejection.
type Parser interface {
	Parse(ctx context.Context, m domain.Market) (domain.ParseResult, error)
}

// Fetcher retrieves the data a spec names.
type Fetcher interface {
	Fetch(ctx context.Context, spec domain.DeterministicSpec) domain.FetchResult
}

// Resolver compares fetched data against a spec.
type Resolver interface {
	Resolve(m domain.Market, spec domain.DeterministicSpec, fetch domain.FetchResult) domain.Verdict
}

// Planner builds the evidence search plan for an event market.
type Planner interface {
	Plan(ctx context.Context, m domain.Market) (domain.EvidencePlan, error)
}

// Gatherer runs a plan against the news providers.
type Gatherer interface {
	Gather(ctx context.Context, plan domain.EvidencePlan) domain.EvidenceCorpus
}

// Evaluator scores a corpus into a verdict.
type Evaluator interface {
	Evaluate(ctx context.Context, m domain.Market, corpus domain.EvidenceCorpus) (domain.Verdict, error)
}

// Components are the steps a Pipeline drives.
type Components struct {
	Classifier Classifier
	Parser     Parser
	Fetcher    Fetcher
	Resolver   Resolver
	Planner    Planner
	Gatherer   Gatherer
	Evaluator  Evaluator
}

// Config tunes batch processing.
type Config struct {
	// BatchConcurrency bounds the markets resolved at once by ResolveMarkets.
	// Values below 1 mean sequential.
	BatchConcurrency int
	// Now overrides the clock used for resolved_at.
	Now func() time.Time
}

// Pipeline resolves markets end to end.
type Pipeline struct {
	steps       Components
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// New creates a Pipeline.
func New(steps Components, cfg Config, logger *slog.Logger) *Pipeline {
	concurrency := cfg.BatchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		steps:       steps,
		concurrency: concurrency,
		now:         now,
		logger:      logger.With(slog.String("component", "pipeline")),
	}
}

// ResolveMarket classifies m and follows its track. It never returns an
// error: failures become a MALFORMED / REJECT result flagged PIPELINE_ERROR.
func (p *Pipeline) ResolveMarket(ctx context.Context, m domain.Market) (result domain.ResolutionResult) {
	runID := uuid.NewString()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = p.failure(m, runID, fmt.Errorf("%w: panic: %v", domain.ErrPipeline, r))
		}
		p.logger.InfoContext(ctx, "market resolved",
			slog.String("market_id", m.ID),
			slog.String("run_id", runID),
			slog.String("category", string(result.Category)),
			slog.String("outcome", string(result.Outcome)),
			slog.Float64("confidence", result.Confidence),
			slog.String("action", string(result.SettlementAction)),
			slog.Duration("took", time.Since(start)),
		)
	}()

	res, err := p.resolve(ctx, m)
	if err != nil {
		return p.failure(m, runID, err)
	}
	res.RunID = runID
	return res
}

func (p *Pipeline) resolve(ctx context.Context, m domain.Market) (domain.ResolutionResult, error) {
	cl, err := p.steps.Classifier.Classify(ctx, m)
	if err != nil {
		return domain.ResolutionResult{}, err
	}

	switch r := routeFor(cl).(type) {
	case dataRoute:
		return p.resolveData(ctx, m, r.classification)
	case eventRoute:
		return p.resolveEvent(ctx, m, r.classification)
	case rejectRoute:
		return p.reject(m, r.classification), nil
	default:
		return domain.ResolutionResult{}, fmt.Errorf("%w: unhandled route %T", domain.ErrPipeline, r)
	}
}

// resolveData parses the market into a deterministic spec and defers it.
// The outcome is produced later by Execute.
func (p *Pipeline) resolveData(ctx context.Context, m domain.Market, cl domain.Classification) (domain.ResolutionResult, error) {
	parsed, err := p.steps.Parser.Parse(ctx, m)
	if err != nil {
		return domain.ResolutionResult{}, err
	}

	res := p.newResult(m, cl)
	res.Outcome = domain.OutcomeUndetermined
	res.SettlementAction = domain.ActionDefer

	switch v := parsed.(type) {
	case *domain.DeterministicSpec:
		res.Confidence = 1.0
		res.DeterministicSpec = v
		res.Reasoning = fmt.Sprintf("Market parsed as %s. Ready for automated resolution via data endpoint.", v.StrategyType)
		res.EvidenceTrail.EvaluationSummary = fmt.Sprintf("Deterministic spec extracted. Strategy: %s.", v.StrategyType)
	case *domain.ParseRejection:
		res.Confidence = 0
		res.Reasoning = "Deterministic parser rejected: " + v.Reason
		res.EvidenceTrail.EvaluationSummary = "Market could not be parsed into deterministic spec."
		res.AddFlag(domain.FlagSpecRejected)
	default:
		return domain.ResolutionResult{}, fmt.Errorf("%w: unexpected parse result %T", domain.ErrPipeline, parsed)
	}
	return res, nil
}

func (p *Pipeline) resolveEvent(ctx context.Context, m domain.Market, cl domain.Classification) (domain.ResolutionResult, error) {
	plan, err := p.steps.Planner.Plan(ctx, m)
	if err != nil {
		return domain.ResolutionResult{}, err
	}
	corpus := p.steps.Gatherer.Gather(ctx, plan)
	v, err := p.steps.Evaluator.Evaluate(ctx, m, corpus)
	if err != nil {
		return domain.ResolutionResult{}, err
	}

	res := p.newResult(m, cl)
	applyVerdict(&res, v)
	res.EvidenceTrail = domain.EvidenceTrail{
		SourcesConsulted:  len(corpus.Sources),
		Sources:           nonNilSources(corpus.Sources),
		EvaluationSummary: v.Summary,
	}
	return res, nil
}

func (p *Pipeline) reject(m domain.Market, cl domain.Classification) domain.ResolutionResult {
	res := p.newResult(m, cl)
	res.Outcome = domain.OutcomeUndetermined
	res.Confidence = 0
	res.SettlementAction = domain.ActionReject
	label := "Subjective/ambiguous market"
	if cl.Category == domain.CategoryMalformed {
		label = "Malformed market"
	}
	res.Reasoning = fmt.Sprintf("%s: %s", label, cl.Reasoning)
	res.EvidenceTrail.EvaluationSummary = "Market rejected: not suitable for automated resolution."
	return res
}

// Execute runs the deferred deterministic step for spec: fetch, compare and
// apply the settlement thresholds. Like ResolveMarket it always returns a
// result.
func (p *Pipeline) Execute(ctx context.Context, m domain.Market, spec domain.DeterministicSpec) (result domain.ResolutionResult) {
	runID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			result = p.failure(m, runID, fmt.Errorf("%w: panic: %v", domain.ErrPipeline, r))
		}
	}()

	if spec.MarketID == "" {
		spec.MarketID = m.ID
	}
	fetch := p.steps.Fetcher.Fetch(ctx, spec)
	v := p.steps.Resolver.Resolve(m, spec, fetch)

	res := p.newResult(m, domain.Classification{Category: domain.CategoryData})
	res.RunID = runID
	applyVerdict(&res, v)
	res.DeterministicSpec = &spec
	res.EvidenceTrail = domain.EvidenceTrail{
		SourcesConsulted:  1,
		Sources:           []domain.EvidenceSource{},
		EvaluationSummary: dataSummary(fetch, v),
		Fetch:             &fetch,
	}

	p.logger.InfoContext(ctx, "spec executed",
		slog.String("market_id", m.ID),
		slog.String("run_id", runID),
		slog.String("strategy", string(spec.StrategyType)),
		slog.String("outcome", string(res.Outcome)),
		slog.Float64("confidence", res.Confidence),
		slog.String("action", string(res.SettlementAction)),
	)
	return res
}

// ForEach runs fn for every market through the bounded worker pool and
// waits for all of them. fn gets the market's index in markets.
func (p *Pipeline) ForEach(ctx context.Context, markets []domain.Market, fn func(ctx context.Context, i int, m domain.Market)) {
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, m := range markets {
		g.Go(func() error {
			fn(ctx, i, m)
			return nil
		})
	}
	_ = g.Wait()
}

// ResolveMarkets resolves a batch through the worker pool. Results keep
// input order and one market's failure never affects another.
func (p *Pipeline) ResolveMarkets(ctx context.Context, markets []domain.Market) []domain.ResolutionResult {
	results := make([]domain.ResolutionResult, len(markets))
	p.ForEach(ctx, markets, func(ctx context.Context, i int, m domain.Market) {
		results[i] = p.ResolveMarket(ctx, m)
	})

	p.logger.InfoContext(ctx, "batch resolved",
		slog.Int("markets", len(markets)),
		slog.Int("concurrency", p.concurrency),
	)
	return results
}

// failure converts an error into the terminal PIPELINE_ERROR result.
func (p *Pipeline) failure(m domain.Market, runID string, err error) domain.ResolutionResult {
	p.logger.Error("pipeline failed",
		slog.String("market_id", m.ID),
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
	)
	return domain.ResolutionResult{
		MarketID:         m.ID,
		RunID:            runID,
		Category:         domain.CategoryMalformed,
		Outcome:          domain.OutcomeUndetermined,
		Confidence:       0,
		SettlementAction: domain.ActionReject,
		Reasoning:        "Pipeline error: " + err.Error(),
		EvidenceTrail: domain.EvidenceTrail{
			Sources:           []domain.EvidenceSource{},
			EvaluationSummary: "Market processing failed.",
		},
		Flags:      []string{domain.FlagPipelineError},
		ResolvedAt: p.now().UTC(),
	}
}

func (p *Pipeline) newResult(m domain.Market, cl domain.Classification) domain.ResolutionResult {
	flags := make([]string, 0, len(cl.Flags))
	flags = append(flags, cl.Flags...)
	return domain.ResolutionResult{
		MarketID: m.ID,
		Category: cl.Category,
		EvidenceTrail: domain.EvidenceTrail{
			Sources: []domain.EvidenceSource{},
		},
		Flags:      flags,
		ResolvedAt: p.now().UTC(),
	}
}

// applyVerdict copies a verdict onto res and derives the settlement action.
func applyVerdict(res *domain.ResolutionResult, v domain.Verdict) {
	res.Outcome = v.Outcome
	res.Confidence = domain.ClampConfidence(v.Confidence)
	res.Reasoning = v.Reasoning
	for _, f := range v.Flags {
		res.AddFlag(f)
	}
	res.SettlementAction = domain.DecideSettlement(res.Category, res.Confidence)
}

func dataSummary(fetch domain.FetchResult, v domain.Verdict) string {
	if !fetch.Success {
		return fmt.Sprintf("Fetch from %s failed: %s", fetch.Provider, fetch.Error)
	}
	if ds := v.DataSummary; ds != nil {
		return fmt.Sprintf("Fetched %s from %s; %s.", ds.FetchedValue, fetch.Provider, ds.ComparisonResult)
	}
	return fmt.Sprintf("Fetched data from %s.", fetch.Provider)
}

func nonNilSources(s []domain.EvidenceSource) []domain.EvidenceSource {
	if s == nil {
		return []domain.EvidenceSource{}
	}
	return s
}
