// Package service wraps the resolution pipeline with the operational layer:
// per-market locking, attestation, persistence, caching, archival, event
// fan-out and operator alerts.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// Resolver is the pipeline surface the service drives.
type Resolver interface {
	ResolveMarket(ctx context.Context, m domain.Market) domain.ResolutionResult
	ForEach(ctx context.Context, markets []domain.Market, fn func(ctx context.Context, i int, m domain.Market))
	Execute(ctx context.Context, m domain.Market, spec domain.DeterministicSpec) domain.ResolutionResult
}

// ResultNotifier alerts operators about a finished resolution.
type ResultNotifier interface {
	NotifyResult(ctx context.Context, market domain.Market, result domain.ResolutionResult) error
}

// Broadcaster pushes results to live subscribers on this instance.
type Broadcaster interface {
	BroadcastResult(result domain.ResolutionResult)
}

// ArchiveReader reads archived records back.
type ArchiveReader interface {
	Records(ctx context.Context, marketID string) ([]domain.BlobInfo, error)
	Load(ctx context.Context, marketID, runID string) (domain.ArchiveRecord, error)
}

// Deps holds the service collaborators. Only Pipeline is required; every
// other dependency is skipped when nil.
type Deps struct {
	Pipeline    Resolver
	Store       domain.ResolutionStore
	Audit       domain.AuditStore
	Cache       domain.ResultCache
	Locks       domain.LockManager
	Bus         domain.SignalBus
	Archiver    domain.ResultArchiver
	Archives    ArchiveReader
	Signer      domain.ResultSigner
	Notifier    ResultNotifier
	Broadcaster Broadcaster
	Sources     []domain.MarketSource
}

// Options tune the service.
type Options struct {
	LockTTL time.Duration
}

// ErrNoStore is returned by reads when no result store is configured.
var ErrNoStore = errors.New("service: no result store configured")

// BatchItem is one market's outcome in a batch call. Exactly one of Result
// and Error is set.
type BatchItem struct {
	MarketID string                   `json:"marketId"`
	Result   *domain.ResolutionResult `json:"result,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// ResolutionService is safe for concurrent use.
type ResolutionService struct {
	deps    Deps
	sources map[string]domain.MarketSource
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewResolutionService creates a ResolutionService.
func NewResolutionService(deps Deps, opts Options, logger *slog.Logger) *ResolutionService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	sources := make(map[string]domain.MarketSource, len(deps.Sources))
	for _, src := range deps.Sources {
		sources[src.Name()] = src
	}
	return &ResolutionService{
		deps:    deps,
		sources: sources,
		lockTTL: opts.LockTTL,
		logger:  logger.With(slog.String("component", "resolution_service")),
	}
}

// ValidateMarket checks the fields every entry point requires.
func ValidateMarket(m domain.Market) error {
	var missing []string
	if strings.TrimSpace(m.ID) == "" {
		missing = append(missing, "marketId")
	}
	if strings.TrimSpace(m.Question) == "" {
		missing = append(missing, "question")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidMarket, strings.Join(missing, ", "))
	}
	return nil
}

// Resolve runs the pipeline for one market under its lock and records the
// result. It fails only on invalid input or a held lock.
func (s *ResolutionService) Resolve(ctx context.Context, m domain.Market) (domain.ResolutionResult, error) {
	if err := ValidateMarket(m); err != nil {
		return domain.ResolutionResult{}, err
	}
	unlock, err := s.lock(ctx, m.ID)
	if err != nil {
		return domain.ResolutionResult{}, err
	}
	defer unlock()

	result := s.deps.Pipeline.ResolveMarket(ctx, m)
	return s.record(ctx, m, result), nil
}

// Execute runs a stored deterministic spec for m under its lock.
func (s *ResolutionService) Execute(ctx context.Context, m domain.Market, spec domain.DeterministicSpec) (domain.ResolutionResult, error) {
	if strings.TrimSpace(m.ID) == "" {
		m.ID = spec.MarketID
	}
	if err := ValidateMarket(m); err != nil {
		return domain.ResolutionResult{}, err
	}
	if spec.MarketID != "" && spec.MarketID != m.ID {
		return domain.ResolutionResult{}, fmt.Errorf("%w: spec is for %q, market is %q",
			domain.ErrInvalidMarket, spec.MarketID, m.ID)
	}
	unlock, err := s.lock(ctx, m.ID)
	if err != nil {
		return domain.ResolutionResult{}, err
	}
	defer unlock()

	result := s.deps.Pipeline.Execute(ctx, m, spec)
	return s.record(ctx, m, result), nil
}

// ResolveBatch resolves markets through the pipeline's worker pool. Invalid,
// duplicate and locked markets are reported per item and do not stop the
// rest. Items keep input order. Each market's lock is taken when its worker
// starts and held until its result is recorded, so lockTTL bounds one market
// rather than the whole batch.
func (s *ResolutionService) ResolveBatch(ctx context.Context, markets []domain.Market) []BatchItem {
	items := make([]BatchItem, len(markets))
	runnable := make([]domain.Market, 0, len(markets))
	slots := make([]int, 0, len(markets))
	seen := make(map[string]bool, len(markets))

	for i, m := range markets {
		items[i].MarketID = m.ID
		if err := ValidateMarket(m); err != nil {
			items[i].Error = err.Error()
			continue
		}
		if seen[m.ID] {
			items[i].Error = fmt.Sprintf("duplicate marketId %q in batch", m.ID)
			continue
		}
		seen[m.ID] = true
		runnable = append(runnable, m)
		slots = append(slots, i)
	}

	s.deps.Pipeline.ForEach(ctx, runnable, func(ctx context.Context, j int, m domain.Market) {
		item := &items[slots[j]]
		unlock, err := s.lock(ctx, m.ID)
		if err != nil {
			item.Error = err.Error()
			return
		}
		defer unlock()

		recorded := s.record(ctx, m, s.deps.Pipeline.ResolveMarket(ctx, m))
		item.Result = &recorded
	})
	return items
}

// ResolveFromSource loads market id from the named venue and resolves it.
func (s *ResolutionService) ResolveFromSource(ctx context.Context, venue, id string) (domain.Market, domain.ResolutionResult, error) {
	m, err := s.LoadMarket(ctx, venue, id)
	if err != nil {
		return domain.Market{}, domain.ResolutionResult{}, err
	}
	result, err := s.Resolve(ctx, m)
	return m, result, err
}

// LoadMarket fetches market id from the named venue.
func (s *ResolutionService) LoadMarket(ctx context.Context, venue, id string) (domain.Market, error) {
	src, ok := s.sources[strings.ToLower(venue)]
	if !ok {
		return domain.Market{}, fmt.Errorf("%w: unknown market source %q", domain.ErrNotFound, venue)
	}
	m, err := src.Market(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: load %s market %s: %w", venue, id, err)
	}
	return m, nil
}

// Sources lists the configured market venues.
func (s *ResolutionService) Sources() []string {
	names := make([]string, 0, len(s.sources))
	for _, src := range s.deps.Sources {
		names = append(names, src.Name())
	}
	return names
}

// Latest returns the newest recorded result for marketID, reading through
// the cache.
func (s *ResolutionService) Latest(ctx context.Context, marketID string) (domain.ResolutionResult, error) {
	if s.deps.Cache != nil {
		if r, err := s.deps.Cache.Get(ctx, marketID); err == nil {
			return r, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "cache read failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.deps.Store == nil {
		return domain.ResolutionResult{}, ErrNoStore
	}

	r, err := s.deps.Store.Latest(ctx, marketID)
	if err != nil {
		return domain.ResolutionResult{}, err
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(ctx, r); err != nil {
			s.logger.WarnContext(ctx, "cache backfill failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return r, nil
}

// List returns stored results matching filter.
func (s *ResolutionService) List(ctx context.Context, filter domain.ResultFilter) ([]domain.ResolutionResult, error) {
	if s.deps.Store == nil {
		return nil, ErrNoStore
	}
	return s.deps.Store.List(ctx, filter)
}

// AuditLog returns audit entries, newest first.
func (s *ResolutionService) AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.deps.Audit == nil {
		return nil, ErrNoStore
	}
	return s.deps.Audit.List(ctx, opts)
}

// Archives lists archived records for marketID.
func (s *ResolutionService) Archives(ctx context.Context, marketID string) ([]domain.BlobInfo, error) {
	if s.deps.Archives == nil {
		return nil, fmt.Errorf("%w: archive storage not configured", domain.ErrNotFound)
	}
	return s.deps.Archives.Records(ctx, marketID)
}

// ArchivedRecord loads one archived run.
func (s *ResolutionService) ArchivedRecord(ctx context.Context, marketID, runID string) (domain.ArchiveRecord, error) {
	if s.deps.Archives == nil {
		return domain.ArchiveRecord{}, fmt.Errorf("%w: archive storage not configured", domain.ErrNotFound)
	}
	return s.deps.Archives.Load(ctx, marketID, runID)
}

// lock takes the per-market lock; without a lock manager it is a no-op.
func (s *ResolutionService) lock(ctx context.Context, marketID string) (func(), error) {
	if s.deps.Locks == nil {
		return func() {}, nil
	}
	unlock, err := s.deps.Locks.Acquire(ctx, "resolve:"+marketID, s.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("service: market %s is already being resolved: %w", marketID, domain.ErrLockHeld)
		}
		return nil, fmt.Errorf("service: lock market %s: %w", marketID, err)
	}
	return unlock, nil
}

// record signs the result and fans it out. Side-effect failures are logged
// and never change the result returned to the caller.
func (s *ResolutionService) record(ctx context.Context, m domain.Market, result domain.ResolutionResult) domain.ResolutionResult {
	log := s.logger.With(
		slog.String("market_id", result.MarketID),
		slog.String("run_id", result.RunID),
	)
	warn := func(step string, err error) {
		log.WarnContext(ctx, step+" failed", slog.String("error", err.Error()))
	}

	if s.deps.Signer != nil {
		if att, err := s.deps.Signer.Sign(result); err != nil {
			warn("attestation", err)
		} else {
			result.Attestation = &att
		}
	}

	if s.deps.Store != nil {
		if err := s.deps.Store.Insert(ctx, result); err != nil {
			warn("store insert", err)
		}
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(ctx, result); err != nil {
			warn("cache set", err)
		}
	}

	var archivePath string
	if s.deps.Archiver != nil {
		p, err := s.deps.Archiver.Archive(ctx, m, result)
		if err != nil {
			warn("archive", err)
		}
		archivePath = p
	}

	if s.deps.Audit != nil {
		detail := map[string]any{
			"market_id":  result.MarketID,
			"run_id":     result.RunID,
			"category":   string(result.Category),
			"outcome":    string(result.Outcome),
			"confidence": result.Confidence,
			"action":     string(result.SettlementAction),
			"flags":      result.Flags,
		}
		if archivePath != "" {
			detail["archive"] = archivePath
		}
		if result.Attestation != nil {
			detail["signer"] = result.Attestation.Signer
		}
		if err := s.deps.Audit.Log(ctx, "resolution", detail); err != nil {
			warn("audit log", err)
		}
	}

	s.publish(ctx, result, warn)

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifyResult(ctx, m, result); err != nil {
			warn("notify", err)
		}
	}
	return result
}

// publish sends the result over the bus when one is configured (every
// instance's hub relays it) and straight to the local broadcaster otherwise.
func (s *ResolutionService) publish(ctx context.Context, result domain.ResolutionResult, warn func(string, error)) {
	if s.deps.Bus == nil {
		if s.deps.Broadcaster != nil {
			s.deps.Broadcaster.BroadcastResult(result)
		}
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		warn("marshal event", err)
		return
	}
	if err := s.deps.Bus.Publish(ctx, domain.ChannelResolutions, payload); err != nil {
		warn("publish", err)
	}
	if err := s.deps.Bus.StreamAppend(ctx, domain.StreamResolutions, payload); err != nil {
		warn("stream append", err)
	}
}

// RelayBus forwards bus events to the local broadcaster until ctx is done.
func (s *ResolutionService) RelayBus(ctx context.Context) error {
	if s.deps.Bus == nil || s.deps.Broadcaster == nil {
		return nil
	}
	ch, err := s.deps.Bus.Subscribe(ctx, domain.ChannelResolutions)
	if err != nil {
		return fmt.Errorf("service: subscribe resolutions: %w", err)
	}
	for payload := range ch {
		var r domain.ResolutionResult
		if err := json.Unmarshal(payload, &r); err != nil {
			s.logger.WarnContext(ctx, "bad resolution event", slog.String("error", err.Error()))
			continue
		}
		s.deps.Broadcaster.BroadcastResult(r)
	}
	return nil
}
