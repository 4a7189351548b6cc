package polymarket

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// APIMarket represents a market as returned by the Gamma API.
type APIMarket struct {
	ID               string   `json:"id"`
	Question         string   `json:"question"`
	ConditionID      string   `json:"conditionId"`
	Slug             string   `json:"slug"`
	Description      string   `json:"description"`
	ResolutionSource string   `json:"resolutionSource"`
	EndDate          string   `json:"endDate"`
	EndDateISO       string   `json:"endDateIso"`
	Active           flexBool `json:"active"`
	Closed           flexBool `json:"closed"`
	Outcomes         string   `json:"outcomes"` // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	UMAStatus        string   `json:"umaResolutionStatus"`
}

// ToDomainMarket converts a Gamma market into a resolvable domain.Market. The
// description carries Polymarket's resolution rules.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ID:                 m.ID,
		Question:           strings.TrimSpace(m.Question),
		ResolutionCriteria: strings.TrimSpace(m.Description),
		Deadline:           deadline(m.EndDate, m.EndDateISO),
		Metadata: map[string]any{
			"venue":  "polymarket",
			"slug":   m.Slug,
			"closed": bool(m.Closed),
			"active": bool(m.Active),
		},
	}
	if m.ConditionID != "" {
		dm.Metadata["condition_id"] = m.ConditionID
	}
	if m.ResolutionSource != "" {
		dm.Metadata["resolution_source"] = m.ResolutionSource
		if dm.ResolutionCriteria == "" {
			dm.ResolutionCriteria = "Resolution source: " + m.ResolutionSource
		}
	}
	if m.UMAStatus != "" {
		dm.Metadata["uma_resolution_status"] = m.UMAStatus
	}
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err == nil && len(outcomes) > 0 {
		dm.Metadata["outcomes"] = outcomes
	}
	return dm
}

// deadline prefers the full end timestamp and falls back to the end date.
func deadline(endDate, endDateISO string) string {
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(endDate)); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	return strings.TrimSpace(endDateISO)
}
