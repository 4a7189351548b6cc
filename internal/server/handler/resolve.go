package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/service"
)

// ResolutionService defines the methods the resolve handlers require from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type ResolutionService interface {
	Resolve(ctx context.Context, m domain.Market) (domain.ResolutionResult, error)
	Execute(ctx context.Context, m domain.Market, spec domain.DeterministicSpec) (domain.ResolutionResult, error)
	ResolveBatch(ctx context.Context, markets []domain.Market) []service.BatchItem
	ResolveFromSource(ctx context.Context, venue, id string) (domain.Market, domain.ResolutionResult, error)
}

// ResolveConfig bounds the write endpoints.
type ResolveConfig struct {
	MaxBatchSize int
	Timeout      time.Duration
}

// ResolveHandler serves the resolution endpoints.
type ResolveHandler struct {
	svc    ResolutionService
	cfg    ResolveConfig
	logger *slog.Logger
}

// NewResolveHandler creates a ResolveHandler.
func NewResolveHandler(svc ResolutionService, cfg ResolveConfig, logger *slog.Logger) *ResolveHandler {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &ResolveHandler{svc: svc, cfg: cfg, logger: logHandler(logger, "resolve")}
}

type resolveRequest struct {
	Market *domain.Market `json:"market"`
}

type resolveResponse struct {
	Success bool                     `json:"success"`
	Market  *domain.Market           `json:"market,omitempty"`
	Result  *domain.ResolutionResult `json:"result,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

type batchRequest struct {
	Markets []domain.Market `json:"markets"`
}

type batchEntry struct {
	Success  bool                     `json:"success"`
	MarketID string                   `json:"marketId,omitempty"`
	Result   *domain.ResolutionResult `json:"result,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

type executeRequest struct {
	Market *domain.Market            `json:"market"`
	Spec   *domain.DeterministicSpec `json:"spec"`
}

// Resolve runs the pipeline for one market.
// POST /api/resolve {"market": {...}}
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Market == nil {
		writeError(w, http.StatusBadRequest, "invalid request: market object with marketId and question required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	result, err := h.svc.Resolve(ctx, *req.Market)
	if err != nil {
		h.fail(w, r, req.Market.ID, err)
		return
	}
	h.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", result.MarketID),
		slog.String("category", string(result.Category)),
		slog.String("outcome", string(result.Outcome)),
		slog.Float64("confidence", result.Confidence),
		slog.String("action", string(result.SettlementAction)),
	)
	writeJSON(w, http.StatusOK, resolveResponse{Success: true, Result: &result})
}

// ResolveBatch resolves many markets; per-market failures are reported
// inline and never fail the request.
// POST /api/resolve/batch {"markets": [...]}
func (h *ResolveHandler) ResolveBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Markets == nil {
		writeError(w, http.StatusBadRequest, "invalid request: markets array required")
		return
	}
	if len(req.Markets) > h.cfg.MaxBatchSize {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch of %d exceeds limit of %d markets", len(req.Markets), h.cfg.MaxBatchSize))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	h.logger.InfoContext(ctx, "batch started", slog.Int("markets", len(req.Markets)))
	items := h.svc.ResolveBatch(ctx, req.Markets)

	entries := make([]batchEntry, len(items))
	for i, it := range items {
		entries[i] = batchEntry{
			Success:  it.Error == "",
			MarketID: it.MarketID,
			Result:   it.Result,
			Error:    it.Error,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": entries})
}

// Execute runs the deterministic fetch and resolution for a parsed spec.
// POST /api/resolve/execute {"market": {...}, "spec": {...}}
func (h *ResolveHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Market == nil || req.Spec == nil {
		writeError(w, http.StatusBadRequest, "invalid request: market and spec required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	result, err := h.svc.Execute(ctx, *req.Market, *req.Spec)
	if err != nil {
		h.fail(w, r, req.Market.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Success: true, Result: &result})
}

// ResolveFromSource loads a market from a venue and resolves it.
// POST /api/resolve/{venue}/{id}
func (h *ResolveHandler) ResolveFromSource(w http.ResponseWriter, r *http.Request) {
	venue := pathParam(r, "venue")
	id := pathParam(r, "id")
	if venue == "" || id == "" {
		writeError(w, http.StatusBadRequest, "missing venue or market id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	m, result, err := h.svc.ResolveFromSource(ctx, venue, id)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Success: true, Market: &m, Result: &result})
}

func (h *ResolveHandler) fail(w http.ResponseWriter, r *http.Request, marketID string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "resolve failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, err.Error())
}
