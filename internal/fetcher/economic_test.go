package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

func TestEconomicSkipsMissingObservations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "UNRATE", q.Get("series_id"))
		assert.Equal(t, "2026-03-06", q.Get("observation_end"))
		assert.Equal(t, "desc", q.Get("sort_order"))
		writeJSON(t, w, map[string]any{"observations": []map[string]string{
			{"date": "2026-03-01", "value": "."},
			{"date": "2026-02-01", "value": "4.1"},
		}})
	}))
	defer srv.Close()

	f := NewEconomicFetcher(EconomicConfig{BaseURL: srv.URL, APIKey: "k", Clock: fixedClock})
	res := f.Fetch(context.Background(), domain.DeterministicSpec{
		StrategyType: domain.StrategyEconomicData,
		Fields:       domain.SpecFields{Indicator: "Unemployment rate", ReleaseDate: "2026-03-06"},
	})

	require.True(t, res.Success, res.Error)
	v, _ := res.Float("value")
	assert.InDelta(t, 4.1, v, 1e-9)
	assert.Equal(t, "2026-02-01", res.String("observation_date"))
	assert.False(t, res.Bool("release_pending", true))
}

func TestEconomicLiteralSeriesAndPendingRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "T10Y2Y", r.URL.Query().Get("series_id"))
		writeJSON(t, w, map[string]any{"observations": []map[string]string{}})
	}))
	defer srv.Close()

	f := NewEconomicFetcher(EconomicConfig{BaseURL: srv.URL, APIKey: "k", Clock: fixedClock})
	res := f.Fetch(context.Background(), domain.DeterministicSpec{
		StrategyType: domain.StrategyEconomicData,
		Fields:       domain.SpecFields{Indicator: "T10Y2Y", ReleaseDate: "2026-04-01"},
	})
	assert.False(t, res.Success)
	assert.True(t, res.Bool("release_pending", false))
}

func TestEconomicUnknownIndicator(t *testing.T) {
	f := NewEconomicFetcher(EconomicConfig{APIKey: "k", Clock: fixedClock})
	res := f.Fetch(context.Background(), domain.DeterministicSpec{
		StrategyType: domain.StrategyEconomicData,
		Fields:       domain.SpecFields{Indicator: "vibes index"},
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "vibes index")
}
