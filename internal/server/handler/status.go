package handler

import (
	"net/http"
)

// IndexHandler describes the service and its endpoints.
type IndexHandler struct {
	Sources []string
	Signer  string
}

// NewIndexHandler creates an IndexHandler listing the configured market
// venues and the attestation address, if any.
func NewIndexHandler(sources []string, signer string) *IndexHandler {
	return &IndexHandler{Sources: sources, Signer: signer}
}

// Index responds with the service description.
// GET /{$}
func (h *IndexHandler) Index(w http.ResponseWriter, r *http.Request) {
	sources := h.Sources
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "polyoracle",
		"description": "Automated prediction market resolution service",
		"version":     Version,
		"sources":     sources,
		"signer":      h.Signer,
		"endpoints": map[string]string{
			"health":   "GET /api/health",
			"resolve":  "POST /api/resolve",
			"batch":    "POST /api/resolve/batch",
			"execute":  "POST /api/resolve/execute",
			"source":   "POST /api/resolve/{venue}/{id}",
			"results":  "GET /api/results",
			"result":   "GET /api/results/{marketId}",
			"archives": "GET /api/results/{marketId}/archives",
			"verify":   "POST /api/verify",
			"audit":    "GET /api/audit",
			"feed":     "GET /ws",
		},
	})
}
