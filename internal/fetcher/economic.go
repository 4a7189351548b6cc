package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

const fredBaseURL = "https://api.stlouisfed.org/fred/series/observations"

// EconomicConfig configures the FRED economic-indicator fetcher.
type EconomicConfig struct {
	BaseURL string
	APIKey  string
	// PerMinute throttles requests; 0 disables throttling.
	PerMinute int
	Timeout   time.Duration
	Clock     Clock
}

// EconomicFetcher serves ECONOMIC_DATA specs from FRED series observations.
type EconomicFetcher struct {
	baseURL string
	apiKey  string
	http    jsonGetter
	clock   Clock
}

// NewEconomicFetcher creates an EconomicFetcher.
func NewEconomicFetcher(cfg EconomicConfig) *EconomicFetcher {
	base := cfg.BaseURL
	if base == "" {
		base = fredBaseURL
	}
	return &EconomicFetcher{baseURL: base, apiKey: cfg.APIKey, http: newJSONGetter(cfg.Timeout, cfg.PerMinute), clock: cfg.Clock}
}

type fredResponse struct {
	ErrorMessage string `json:"error_message"`
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// seriesID resolves an indicator to a FRED series id. Bare uppercase ids
// such as "UNRATE" pass through.
func seriesID(indicator string) (string, bool) {
	if id, ok := LookupFredSeries(indicator); ok {
		return id, true
	}
	s := strings.TrimSpace(indicator)
	if s == "" || s != strings.ToUpper(s) || strings.ContainsAny(s, " \t") {
		return "", false
	}
	return s, true
}

// Fetch implements Fetcher.
func (f *EconomicFetcher) Fetch(ctx context.Context, spec domain.DeterministicSpec) domain.FetchResult {
	const provider = "fred"
	now := f.clock.now()
	fields := spec.Fields
	data := map[string]any{"indicator": fields.Indicator}

	if f.apiKey == "" {
		return domain.FetchFailed(provider, "fred api key not configured", data, now)
	}
	id, ok := seriesID(fields.Indicator)
	if !ok {
		return domain.FetchFailed(provider, fmt.Sprintf("unknown economic indicator %q", fields.Indicator), data, now)
	}
	data["series_id"] = id

	end := today(now)
	for _, s := range []string{fields.ReleaseDate, fields.ResolutionDate, fields.Date} {
		if d, ok := parseDate(s); ok {
			end = d
			break
		}
	}
	data["observation_end"] = end.Format(time.DateOnly)
	// A release date in the future means the figure may not be out yet.
	data["release_pending"] = end.After(today(now))

	q := url.Values{}
	q.Set("series_id", id)
	q.Set("api_key", f.apiKey)
	q.Set("file_type", "json")
	q.Set("observation_end", end.Format(time.DateOnly))
	q.Set("sort_order", "desc")
	q.Set("limit", "12")

	var resp fredResponse
	if err := f.http.getJSON(ctx, f.baseURL+"?"+q.Encode(), &resp); err != nil {
		return domain.FetchFailed(provider, fmt.Sprintf("series %s: %v", id, err), data, now)
	}
	if resp.ErrorMessage != "" {
		return domain.FetchFailed(provider, resp.ErrorMessage, data, now)
	}
	for _, obs := range resp.Observations {
		if obs.Value == "." || obs.Value == "" {
			continue
		}
		v, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		data["value"] = v
		data["observation_date"] = obs.Date
		return domain.FetchOK(provider, data, now)
	}
	return domain.FetchFailed(provider, fmt.Sprintf("no observations for %s on or before %s", id, end.Format(time.DateOnly)), data, now)
}

var _ Fetcher = (*EconomicFetcher)(nil)
