package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

const alphaVantageURL = "https://www.alphavantage.co/query"

// StockConfig configures the Alpha Vantage stock fetcher.
type StockConfig struct {
	BaseURL   string
	APIKey    string
	PerMinute int
	Timeout   time.Duration
	Clock     Clock
}

// StockFetcher serves STOCK_CLOSE_PRICE specs from Alpha Vantage daily bars.
type StockFetcher struct {
	baseURL string
	apiKey  string
	http    jsonGetter
	clock   Clock
}

// NewStockFetcher creates a StockFetcher. The free tier allows five calls a
// minute, which is the default throttle.
func NewStockFetcher(cfg StockConfig) *StockFetcher {
	base := cfg.BaseURL
	if base == "" {
		base = alphaVantageURL
	}
	perMinute := cfg.PerMinute
	if perMinute == 0 {
		perMinute = 5
	}
	return &StockFetcher{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    newJSONGetter(cfg.Timeout, perMinute),
		clock:   cfg.Clock,
	}
}

type avDailyResponse struct {
	ErrorMessage string                       `json:"Error Message"`
	Note         string                       `json:"Note"`
	Information  string                       `json:"Information"`
	Series       map[string]map[string]string `json:"Time Series (Daily)"`
}

// Fetch implements Fetcher.
func (f *StockFetcher) Fetch(ctx context.Context, spec domain.DeterministicSpec) domain.FetchResult {
	const provider = "alpha_vantage"
	now := f.clock.now()
	ticker := strings.ToUpper(strings.TrimSpace(spec.Fields.Ticker))
	data := map[string]any{"ticker": ticker}

	if f.apiKey == "" {
		return domain.FetchFailed(provider, "alpha vantage api key not configured", data, now)
	}
	dateStr := spec.Fields.ResolutionDate
	if dateStr == "" {
		dateStr = spec.Fields.Date
	}
	want, ok := parseDate(dateStr)
	if !ok {
		return domain.FetchFailed(provider, fmt.Sprintf("unparseable resolution_date %q", dateStr), data, now)
	}
	data["requested_date"] = want.Format(time.DateOnly)
	data["requested_date_in_future"] = !want.Before(today(now))

	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY")
	q.Set("symbol", ticker)
	q.Set("outputsize", "compact")
	q.Set("apikey", f.apiKey)

	var resp avDailyResponse
	if err := f.http.getJSON(ctx, f.baseURL+"?"+q.Encode(), &resp); err != nil {
		return domain.FetchFailed(provider, fmt.Sprintf("daily series %s: %v", ticker, err), data, now)
	}
	switch {
	case resp.ErrorMessage != "":
		return domain.FetchFailed(provider, resp.ErrorMessage, data, now)
	case resp.Note != "":
		return domain.FetchFailed(provider, "rate limited: "+resp.Note, data, now)
	case resp.Information != "" && len(resp.Series) == 0:
		return domain.FetchFailed(provider, resp.Information, data, now)
	case len(resp.Series) == 0:
		return domain.FetchFailed(provider, fmt.Sprintf("empty daily series for %s", ticker), data, now)
	}

	day := want.Format(time.DateOnly)
	bar, exact := resp.Series[day]
	if !exact {
		// Fall back to the latest trading day before the requested date.
		dates := make([]string, 0, len(resp.Series))
		for d := range resp.Series {
			if d < day {
				dates = append(dates, d)
			}
		}
		if len(dates) == 0 {
			return domain.FetchFailed(provider, fmt.Sprintf("no trading day on or before %s for %s", day, ticker), data, now)
		}
		sort.Strings(dates)
		day = dates[len(dates)-1]
		bar = resp.Series[day]
	}

	closePrice, err := strconv.ParseFloat(bar["4. close"], 64)
	if err != nil {
		return domain.FetchFailed(provider, fmt.Sprintf("bad close %q for %s", bar["4. close"], day), data, now)
	}
	data["date"] = day
	data["exact_date_match"] = exact
	data["price"] = closePrice
	data["close"] = closePrice
	for key, field := range map[string]string{"open": "1. open", "high": "2. high", "low": "3. low", "volume": "5. volume"} {
		if v, err := strconv.ParseFloat(bar[field], 64); err == nil {
			data[key] = v
		}
	}
	return domain.FetchOK(provider, data, now)
}

var _ Fetcher = (*StockFetcher)(nil)
