package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// CryptoConfig configures the Binance-backed crypto fetcher.
type CryptoConfig struct {
	// BaseURL overrides the Binance REST root, e.g. for a regional mirror.
	BaseURL   string
	APIKey    string
	SecretKey string
	Timeout   time.Duration
	Clock     Clock
}

// CryptoFetcher serves CRYPTO_PRICE_SPOT and CRYPTO_PRICE_TWAP specs from
// Binance spot market data.
type CryptoFetcher struct {
	client *binance.Client
	clock  Clock
}

// NewCryptoFetcher creates a CryptoFetcher.
func NewCryptoFetcher(cfg CryptoConfig) *CryptoFetcher {
	c := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		c.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	c.HTTPClient = &http.Client{Timeout: timeout}
	return &CryptoFetcher{client: c, clock: cfg.Clock}
}

// BinanceSymbol converts a trading pair such as "BTC/USD" into a Binance
// symbol ("BTCUSDT"). It also returns the quote currency the market asked
// for and the one the symbol actually trades against.
func BinanceSymbol(pair, asset string) (symbol, requestedQuote, quote string) {
	p := strings.ToUpper(strings.TrimSpace(pair))
	if p == "" {
		p = strings.ToUpper(strings.TrimSpace(asset)) + "/USD"
	}
	for _, sep := range []string{"/", "-", "_", " "} {
		if i := strings.Index(p, sep); i > 0 {
			requestedQuote = p[i+1:]
			break
		}
	}
	symbol = strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(p)
	if requestedQuote == "" {
		// Longer stablecoin codes first so "BUSD" is not read as "USD".
		for _, q := range []string{"USDT", "USDC", "FDUSD", "BUSD", "TUSD", "BTC", "ETH", "EUR", "USD"} {
			if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
				requestedQuote = q
				break
			}
		}
	}
	quote = requestedQuote
	// Binance has no plain USD spot books; USD maps to USDT.
	if requestedQuote == "USD" {
		symbol += "T"
		quote = "USDT"
	}
	return symbol, requestedQuote, quote
}

// Fetch implements Fetcher.
func (f *CryptoFetcher) Fetch(ctx context.Context, spec domain.DeterministicSpec) domain.FetchResult {
	symbol, requestedQuote, quote := BinanceSymbol(spec.Fields.Pair, spec.Fields.Asset)
	base := map[string]any{
		"symbol":          symbol,
		"pair":            spec.Fields.Pair,
		"requested_quote": requestedQuote,
		"quote_currency":  quote,
	}
	if spec.StrategyType == domain.StrategyCryptoTWAP {
		return f.twap(ctx, symbol, spec.Fields, base)
	}
	return f.spot(ctx, symbol, spec.Fields, base)
}

func (f *CryptoFetcher) spot(ctx context.Context, symbol string, fields domain.SpecFields, data map[string]any) domain.FetchResult {
	now := f.clock.now()
	at, hasTime := parseTimestamp(fields.ResolutionTime)
	if fields.ResolutionTime != "" && !hasTime {
		return domain.FetchFailed("binance", fmt.Sprintf("unparseable resolution_time %q", fields.ResolutionTime), data, now)
	}

	if hasTime && !at.After(now) {
		klines, err := f.client.NewKlinesService().
			Symbol(symbol).
			Interval("1m").
			StartTime(at.UnixMilli()).
			Limit(1).
			Do(ctx)
		if err != nil {
			return domain.FetchFailed("binance_historical", fmt.Sprintf("klines %s: %v", symbol, err), data, now)
		}
		if len(klines) == 0 {
			return domain.FetchFailed("binance_historical", fmt.Sprintf("no candle for %s at %s", symbol, at.Format(time.RFC3339)), data, now)
		}
		k := klines[0]
		price, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return domain.FetchFailed("binance_historical", fmt.Sprintf("bad close %q: %v", k.Close, err), data, now)
		}
		data["price"] = price
		data["method"] = "HISTORICAL_KLINE"
		data["candle_open_time"] = time.UnixMilli(k.OpenTime).UTC().Format(time.RFC3339)
		data["resolution_time"] = at.Format(time.RFC3339)
		data["window_closed"] = true
		return domain.FetchOK("binance_historical", data, now)
	}

	prices, err := f.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.FetchFailed("binance_spot", fmt.Sprintf("ticker %s: %v", symbol, err), data, now)
	}
	if len(prices) == 0 {
		return domain.FetchFailed("binance_spot", fmt.Sprintf("no ticker price for %s", symbol), data, now)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return domain.FetchFailed("binance_spot", fmt.Sprintf("bad price %q: %v", prices[0].Price, err), data, now)
	}
	data["price"] = price
	data["method"] = "SPOT"
	data["is_live"] = true
	// A live read settles only markets without a future resolution time.
	data["window_closed"] = !hasTime
	if hasTime {
		data["resolution_time"] = at.Format(time.RFC3339)
	}
	return domain.FetchOK("binance_spot", data, now)
}

// parseWindow accepts Go durations plus a "d" day suffix ("1h", "30m", "7d").
func parseWindow(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("window %q: %w", s, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("window %q: %w", s, err)
	}
	return d, nil
}

// klinePlan picks a candle interval and count covering window.
func klinePlan(window time.Duration) (interval string, limit int) {
	switch {
	case window <= time.Hour:
		interval, limit = "1m", int(window/time.Minute)
	case window <= 72*time.Hour:
		interval, limit = "5m", int(window/(5*time.Minute))
	default:
		interval, limit = "1h", int(window/time.Hour)
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}
	return interval, limit
}

func (f *CryptoFetcher) twap(ctx context.Context, symbol string, fields domain.SpecFields, data map[string]any) domain.FetchResult {
	now := f.clock.now()
	window, err := parseWindow(fields.Window)
	if err != nil || window <= 0 {
		return domain.FetchFailed("binance_twap", fmt.Sprintf("invalid TWAP window %q", fields.Window), data, now)
	}

	end := now
	closed := true
	if fields.ResolutionTime != "" {
		at, ok := parseTimestamp(fields.ResolutionTime)
		if !ok {
			return domain.FetchFailed("binance_twap", fmt.Sprintf("unparseable resolution_time %q", fields.ResolutionTime), data, now)
		}
		if at.After(now) {
			closed = false
		} else {
			end = at
		}
	}
	start := end.Add(-window)
	interval, limit := klinePlan(window)

	klines, err := f.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(start.UnixMilli()).
		EndTime(end.UnixMilli()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return domain.FetchFailed("binance_twap", fmt.Sprintf("klines %s: %v", symbol, err), data, now)
	}
	if len(klines) == 0 {
		return domain.FetchFailed("binance_twap", fmt.Sprintf("no candles for %s between %s and %s",
			symbol, start.Format(time.RFC3339), end.Format(time.RFC3339)), data, now)
	}

	var sum, high, low float64
	points := 0
	for i, k := range klines {
		c, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			continue
		}
		h, errH := strconv.ParseFloat(k.High, 64)
		l, errL := strconv.ParseFloat(k.Low, 64)
		if errH != nil {
			h = c
		}
		if errL != nil {
			l = c
		}
		if i == 0 || points == 0 {
			high, low = h, l
		}
		if h > high {
			high = h
		}
		if l < low {
			low = l
		}
		sum += c
		points++
	}
	if points == 0 {
		return domain.FetchFailed("binance_twap", fmt.Sprintf("no parseable candles for %s", symbol), data, now)
	}

	data["price"] = sum / float64(points)
	data["high"] = high
	data["low"] = low
	data["data_points"] = points
	data["interval"] = interval
	data["window"] = fields.Window
	data["period_start"] = time.UnixMilli(klines[0].OpenTime).UTC().Format(time.RFC3339)
	data["period_end"] = time.UnixMilli(klines[len(klines)-1].CloseTime).UTC().Format(time.RFC3339)
	data["method"] = "TWAP"
	data["window_closed"] = closed
	return domain.FetchOK("binance_twap", data, now)
}

var _ Fetcher = (*CryptoFetcher)(nil)
