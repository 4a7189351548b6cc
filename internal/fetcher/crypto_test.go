package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

func kline(open time.Time, o, h, l, c string) []any {
	return []any{
		open.UnixMilli(), o, h, l, c, "10.0",
		open.Add(time.Minute - time.Millisecond).UnixMilli(),
		"1000.0", 42, "5.0", "500.0", "0",
	}
}

func TestBinanceSymbol(t *testing.T) {
	cases := []struct {
		pair, asset, symbol, requested, quote string
	}{
		{"BTC/USD", "", "BTCUSDT", "USD", "USDT"},
		{"eth-usdt", "", "ETHUSDT", "USDT", "USDT"},
		{"", "SOL", "SOLUSDT", "USD", "USDT"},
		{"ETH_BTC", "", "ETHBTC", "BTC", "BTC"},
		{"BTCUSDT", "", "BTCUSDT", "USDT", "USDT"},
		{"BTCUSD", "", "BTCUSDT", "USD", "USDT"},
		{"ETH/BUSD", "", "ETHBUSD", "BUSD", "BUSD"},
		{"X/TUSD", "", "XTUSD", "TUSD", "TUSD"},
		{"SOL-FDUSD", "", "SOLFDUSD", "FDUSD", "FDUSD"},
		{"XTUSD", "", "XTUSD", "TUSD", "TUSD"},
	}
	for _, tc := range cases {
		t.Run(tc.pair+tc.asset, func(t *testing.T) {
			s, r, q := BinanceSymbol(tc.pair, tc.asset)
			assert.Equal(t, tc.symbol, s)
			assert.Equal(t, tc.requested, r)
			assert.Equal(t, tc.quote, q)
		})
	}
}

func TestCryptoSpotPastTimeUsesHistoricalCandle(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, strconv.FormatInt(at.UnixMilli(), 10), r.URL.Query().Get("startTime"))
		writeJSON(t, w, [][]any{kline(at, "99000", "99500", "98800", "99100.5")})
	}))
	defer srv.Close()

	f := NewCryptoFetcher(CryptoConfig{BaseURL: srv.URL, Clock: fixedClock})
	res := f.Fetch(context.Background(), domain.DeterministicSpec{
		StrategyType: domain.StrategyCryptoSpot,
		Fields:       domain.SpecFields{Pair: "BTC/USD", ResolutionTime: "2026-03-01T00:00:00Z"},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "/api/v3/klines", gotPath)
	assert.Equal(t, "binance_historical", res.Provider)
	assert.Equal(t, "HISTORICAL_KLINE", res.String("method"))
	price, _ := res.Float("price")
	assert.InDelta(t, 99100.5, price, 1e-9)
	assert.Equal(t, "USDT", res.String("quote_currency"))
	assert.Equal(t, "USD", res.String("requested_quote"))
}

func TestCryptoSpotFutureTimeUsesLivePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		writeJSON(t, w, []map[string]string{{"symbol": "ETHUSDT", "price": "3120.25"}})
	}))
	defer srv.Close()

	f := NewCryptoFetcher(CryptoConfig{BaseURL: srv.URL, Clock: fixedClock})
	res := f.Fetch(context.Background(), domain.DeterministicSpec{
		StrategyType: domain.StrategyCryptoSpot,
		Fields:       domain.SpecFields{Pair: "ETH/USD", ResolutionTime: "2026-04-01T00:00:00Z"},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "binance_spot", res.Provider)
	assert.True(t, res.Bool("is_live", false))
	assert.False(t, res.Bool("window_closed", true))
}

func TestCryptoSpotWithoutResolutionTimeUsesLivePrice(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		writeJSON(t, w, []map[string]string{{"symbol": "BTCUSDT", "price": "101250.75"}})
	}))
	defer srv.Close()

	f := NewCryptoFetcher(CryptoConfig{BaseURL: srv.URL, Clock: fixedClock})
	res := f.Fetch(context.Background(), domain.DeterministicSpec{
		StrategyType: domain.StrategyCryptoSpot,
		Fields:       domain.SpecFields{Pair: "BTC/USD"},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"/api/v3/ticker/price"}, paths)
	assert.NotContains(t, paths, "/api/v3/klines")
	assert.Equal(t, "binance_spot", res.Provider)
	assert.Equal(t, "SPOT", res.String("method"))
	price, _ := res.Float("price")
	assert.InDelta(t, 101250.75, price, 1e-9)
	assert.True(t, res.Bool("is_live", false))
	assert.True(t, res.Bool("window_closed", false))
	assert.Empty(t, res.String("resolution_time"))
}

func TestCryptoTWAPAveragesCloses(t *testing.T) {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	start := end.Add(-time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1m", q.Get("interval"))
		assert.Equal(t, "60", q.Get("limit"))
		assert.Equal(t, strconv.FormatInt(start.UnixMilli(), 10), q.Get("startTime"))
		assert.Equal(t, strconv.FormatInt(end.UnixMilli(), 10), q.Get("endTime"))
		writeJSON(t, w, [][]any{
			kline(start, "100", "110", "95", "100"),
			kline(start.Add(time.Minute), "100", "120", "99", "110"),
			kline(start.Add(2*time.Minute), "110", "115", "90", "120"),
		})
	}))
	defer srv.Close()

	f := NewCryptoFetcher(CryptoConfig{BaseURL: srv.URL, Clock: fixedClock})
	res := f.Fetch(context.Background(), domain.DeterministicSpec{
		StrategyType: domain.StrategyCryptoTWAP,
		Fields: domain.SpecFields{
			Pair: "BTC/USD", AggregationMethod: "TWAP", Window: "1h",
			ResolutionTime: "2026-03-01T00:00:00Z",
		},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "binance_twap", res.Provider)
	price, _ := res.Float("price")
	high, _ := res.Float("high")
	low, _ := res.Float("low")
	points, _ := res.Float("data_points")
	assert.InDelta(t, 110.0, price, 1e-9)
	assert.InDelta(t, 120.0, high, 1e-9)
	assert.InDelta(t, 90.0, low, 1e-9)
	assert.Equal(t, 3.0, points)
	assert.True(t, res.Bool("window_closed", false))
}

func TestCryptoTWAPZeroCandlesFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, [][]any{})
	}))
	defer srv.Close()

	f := NewCryptoFetcher(CryptoConfig{BaseURL: srv.URL, Clock: fixedClock})
	res := f.Fetch(context.Background(), domain.DeterministicSpec{
		StrategyType: domain.StrategyCryptoTWAP,
		Fields:       domain.SpecFields{Pair: "BTC/USD", Window: "1h", ResolutionTime: "2026-03-01T00:00:00Z"},
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no candles")
}

func TestCryptoUpstreamErrorIsFailureResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	f := NewCryptoFetcher(CryptoConfig{BaseURL: srv.URL, Clock: fixedClock})
	res := f.Fetch(context.Background(), domain.DeterministicSpec{
		StrategyType: domain.StrategyCryptoSpot,
		Fields:       domain.SpecFields{Pair: "NOPE/USD"},
	})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestKlinePlan(t *testing.T) {
	i, n := klinePlan(30 * time.Minute)
	assert.Equal(t, "1m", i)
	assert.Equal(t, 30, n)

	i, n = klinePlan(24 * time.Hour)
	assert.Equal(t, "5m", i)
	assert.Equal(t, 288, n)

	i, n = klinePlan(30 * 24 * time.Hour)
	assert.Equal(t, "1h", i)
	assert.Equal(t, 720, n)

	_, n = klinePlan(90 * 24 * time.Hour)
	assert.Equal(t, 1000, n)
}
