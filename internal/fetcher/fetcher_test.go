package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

type stubFetcher struct {
	res   domain.FetchResult
	panic bool
}

func (s stubFetcher) Fetch(context.Context, domain.DeterministicSpec) domain.FetchResult {
	if s.panic {
		panic("boom")
	}
	return s.res
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry(fixedClock, discard())
	r.Register(stubFetcher{res: domain.FetchOK("stub", map[string]any{"price": 1.0}, fixedNow)},
		domain.StrategyCryptoSpot, domain.StrategyCryptoTWAP)

	res := r.Fetch(context.Background(), domain.DeterministicSpec{StrategyType: domain.StrategyCryptoTWAP})
	assert.True(t, res.Success)
	assert.Equal(t, "stub", res.Provider)
	assert.Equal(t, []domain.StrategyType{domain.StrategyCryptoSpot, domain.StrategyCryptoTWAP}, r.Strategies())
}

func TestRegistryUnregisteredStrategy(t *testing.T) {
	r := NewRegistry(fixedClock, discard())

	res := r.Fetch(context.Background(), domain.DeterministicSpec{StrategyType: domain.StrategyWeather})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "WEATHER_API")
	assert.True(t, res.Bool("unsupported_strategy", false))
}

func TestRegistryRecoversPanic(t *testing.T) {
	r := NewRegistry(fixedClock, discard())
	r.Register(stubFetcher{panic: true}, domain.StrategyStockClose)

	res := r.Fetch(context.Background(), domain.DeterministicSpec{StrategyType: domain.StrategyStockClose})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
}

func TestLookupReferenceData(t *testing.T) {
	name, c, ok := LookupCity("New York City, NY")
	require.True(t, ok)
	assert.Equal(t, "new york city", name)
	assert.InDelta(t, 40.7128, c.Lat, 1e-4)

	_, _, ok = LookupCity("Atlantis")
	assert.False(t, ok)

	l, ok := LookupLeague("", "NBA")
	require.True(t, ok)
	assert.Equal(t, "basketball", l.Sport)

	l, ok = LookupLeague("English Premier League 2025/26", "soccer")
	require.True(t, ok)
	assert.Equal(t, "eng.1", l.League)

	id, ok := LookupFredSeries("US unemployment rate")
	require.True(t, ok)
	assert.Equal(t, "UNRATE", id)
}

func TestCheckHTTPStatus(t *testing.T) {
	assert.NoError(t, checkHTTPStatus(200, nil))
	assert.ErrorIs(t, checkHTTPStatus(404, nil), domain.ErrNotFound)
	assert.ErrorIs(t, checkHTTPStatus(403, nil), domain.ErrUnauthorized)
	assert.ErrorIs(t, checkHTTPStatus(429, nil), domain.ErrRateLimited)
	assert.ErrorIs(t, checkHTTPStatus(502, nil), domain.ErrProviderUnavailable)
	assert.Error(t, checkHTTPStatus(400, []byte("bad")))
}
