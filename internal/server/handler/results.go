package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyoracle/internal/crypto"
	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// ResultReader is the read side of the resolution service.
type ResultReader interface {
	Latest(ctx context.Context, marketID string) (domain.ResolutionResult, error)
	List(ctx context.Context, filter domain.ResultFilter) ([]domain.ResolutionResult, error)
	Archives(ctx context.Context, marketID string) ([]domain.BlobInfo, error)
	ArchivedRecord(ctx context.Context, marketID, runID string) (domain.ArchiveRecord, error)
	AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// ResultHandler serves stored results, archived runs and attestation checks.
type ResultHandler struct {
	results ResultReader
	logger  *slog.Logger
}

// NewResultHandler creates a ResultHandler.
func NewResultHandler(results ResultReader, logger *slog.Logger) *ResultHandler {
	return &ResultHandler{results: results, logger: logHandler(logger, "results")}
}

type listResultsResponse struct {
	Results []domain.ResolutionResult `json:"results"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
}

// ListResults returns stored results, newest first.
// GET /api/results?market_id=&category=&action=&since=&limit=50&offset=0
func (h *ResultHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	filter, err := parseResultFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.results.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list results failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list results")
		return
	}
	if results == nil {
		results = []domain.ResolutionResult{}
	}
	writeJSON(w, http.StatusOK, listResultsResponse{
		Results: results,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

// GetResult returns the latest result for a market.
// GET /api/results/{marketId}
func (h *ResultHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "marketId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	result, err := h.results.Latest(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			writeError(w, status, "no result for market "+id)
			return
		}
		h.logger.ErrorContext(r.Context(), "get result failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, status, "failed to load result")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListArchives lists the archived runs of a market.
// GET /api/results/{marketId}/archives
func (h *ResultHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "marketId")
	blobs, err := h.results.Archives(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if blobs == nil {
		blobs = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"marketId": id, "archives": blobs})
}

// GetArchive returns one archived run with its market and full evidence.
// GET /api/results/{marketId}/archives/{runId}
func (h *ResultHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	rec, err := h.results.ArchivedRecord(r.Context(), pathParam(r, "marketId"), pathParam(r, "runId"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListAudit returns the audit log, newest first.
// GET /api/audit?since=&limit=50&offset=0
func (h *ResultHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := parseResultFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.results.AuditLog(r.Context(), domain.ListOpts{
		Limit:  filter.Limit,
		Offset: filter.Offset,
		Since:  filter.Since,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list audit log")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

type verifyResponse struct {
	Valid  bool   `json:"valid"`
	Signer string `json:"signer,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Verify checks the attestation carried by a posted result.
// POST /api/verify {result}
func (h *ResultHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var result domain.ResolutionResult
	if err := decodeJSON(w, r, &result); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := crypto.Verify(result); err != nil {
		writeJSON(w, http.StatusOK, verifyResponse{Valid: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Valid: true, Signer: result.Attestation.Signer})
}
