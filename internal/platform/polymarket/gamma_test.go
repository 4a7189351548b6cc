package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

const gammaMarket = `{
	"id": "512345",
	"question": "Will BTC close above $100,000 on March 1?",
	"conditionId": "0xabc",
	"slug": "btc-above-100k-march-1",
	"description": "Resolves YES if the Binance BTC/USDT 1m candle close at 00:00 UTC is above 100,000.",
	"resolutionSource": "https://www.binance.com",
	"endDate": "2026-03-01T00:00:00Z",
	"endDateIso": "2026-03-01",
	"active": "true",
	"closed": false,
	"outcomes": "[\"Yes\", \"No\"]"
}`

func TestGammaMarketByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/512345", r.URL.Path)
		_, _ = w.Write([]byte(gammaMarket))
	}))
	defer srv.Close()

	m, err := NewGammaClient(srv.URL, time.Second).Market(context.Background(), "512345")
	require.NoError(t, err)

	assert.Equal(t, "512345", m.ID)
	assert.Equal(t, "2026-03-01T00:00:00Z", m.Deadline)
	assert.Contains(t, m.ResolutionCriteria, "Binance BTC/USDT")
	assert.Equal(t, "polymarket", m.Metadata["venue"])
	assert.Equal(t, true, m.Metadata["active"])
	assert.Equal(t, []string{"Yes", "No"}, m.Metadata["outcomes"])
}

func TestGammaMarketBySlug(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		if r.URL.Query().Get("slug") == "missing" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte("[" + gammaMarket + "]"))
	}))
	defer srv.Close()

	c := NewGammaClient(srv.URL, time.Second)
	m, err := c.Market(context.Background(), "btc-above-100k-march-1")
	require.NoError(t, err)
	assert.Equal(t, "btc-above-100k-march-1", m.Metadata["slug"])

	_, err = c.Market(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGammaStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewGammaClient(srv.URL, time.Second).Market(context.Background(), "1")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestDeadlineFallsBackToEndDate(t *testing.T) {
	m := APIMarket{ID: "1", Question: "q", Description: "d", EndDateISO: "2026-04-01"}
	assert.Equal(t, "2026-04-01", m.ToDomainMarket().Deadline)

	m.Description = ""
	m.ResolutionSource = "https://www.espn.com"
	assert.Equal(t, "Resolution source: https://www.espn.com", m.ToDomainMarket().ResolutionCriteria)
}
