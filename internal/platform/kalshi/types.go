package kalshi

import (
	"strings"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// KalshiMarket represents a market as returned by the Kalshi REST API.
type KalshiMarket struct {
	Ticker           string  `json:"ticker"`
	EventTicker      string  `json:"event_ticker"`
	Title            string  `json:"title"`
	Subtitle         string  `json:"subtitle"`
	Status           string  `json:"status"` // "open", "closed", "settled"
	Category         string  `json:"category"`
	RulesPrimary     string  `json:"rules_primary"`
	RulesSecondary   string  `json:"rules_secondary"`
	StrikeType       string  `json:"strike_type"`
	FloorStrike      float64 `json:"floor_strike"`
	CapStrike        float64 `json:"cap_strike"`
	Result           string  `json:"result"` // "yes", "no", "" (unsettled)
	CanCloseEarly    bool    `json:"can_close_early"`
	ExpirationTime   string  `json:"expiration_time"`
	OpenTime         string  `json:"open_time"`
	CloseTime        string  `json:"close_time"`
	FunctionalStrike string  `json:"functional_strike"`
}

// KalshiErrorResponse is the error envelope returned by the Kalshi API.
type KalshiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToDomainMarket converts a Kalshi market into a resolvable domain.Market.
// The close time is the deadline; the primary and secondary rules together
// are the resolution criteria.
func (m KalshiMarket) ToDomainMarket() domain.Market {
	question := strings.TrimSpace(m.Title)
	if sub := strings.TrimSpace(m.Subtitle); sub != "" {
		question = question + " (" + sub + ")"
	}
	criteria := strings.TrimSpace(strings.TrimSpace(m.RulesPrimary) + " " + strings.TrimSpace(m.RulesSecondary))

	deadline := m.CloseTime
	if deadline == "" {
		deadline = m.ExpirationTime
	}
	if t, err := time.Parse(time.RFC3339, deadline); err == nil {
		deadline = t.UTC().Format(time.RFC3339)
	}

	md := map[string]any{
		"venue":        "kalshi",
		"event_ticker": m.EventTicker,
		"status":       m.Status,
	}
	if m.Category != "" {
		md["category"] = m.Category
	}
	if m.StrikeType != "" {
		md["strike_type"] = m.StrikeType
		md["floor_strike"] = m.FloorStrike
		md["cap_strike"] = m.CapStrike
	}
	return domain.Market{
		ID:                 m.Ticker,
		Question:           question,
		ResolutionCriteria: criteria,
		Deadline:           deadline,
		Metadata:           md,
	}
}
