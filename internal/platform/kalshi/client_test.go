package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

const marketBody = `{"market": {
	"ticker": "KXHIGHNY-26MAR10-B60",
	"event_ticker": "KXHIGHNY-26MAR10",
	"title": "Highest temperature in NYC on Mar 10, 2026?",
	"subtitle": "60° or above",
	"status": "open",
	"rules_primary": "If the highest temperature recorded in Central Park is 60° or above, the market resolves to Yes.",
	"rules_secondary": "Source: NWS climatological report.",
	"strike_type": "greater",
	"floor_strike": 60,
	"close_time": "2026-03-11T04:59:00Z"
}}`

func TestMarketUnsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-api/v2/markets/KXHIGHNY-26MAR10-B60", r.URL.Path)
		assert.Empty(t, r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		_, _ = w.Write([]byte(marketBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/trade-api/v2", "", time.Second)
	m, err := c.Market(context.Background(), "kxhighny-26mar10-b60")
	require.NoError(t, err)

	assert.Equal(t, "KXHIGHNY-26MAR10-B60", m.ID)
	assert.Equal(t, "Highest temperature in NYC on Mar 10, 2026? (60° or above)", m.Question)
	assert.Contains(t, m.ResolutionCriteria, "Central Park")
	assert.Contains(t, m.ResolutionCriteria, "NWS climatological report")
	assert.Equal(t, "2026-03-11T04:59:00Z", m.Deadline)
	assert.Equal(t, "kalshi", m.Metadata["venue"])
	assert.Equal(t, 60.0, m.Metadata["floor_strike"])
}

func TestMarketSignedWhenKeyConfigured(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-id", r.Header.Get("KALSHI-ACCESS-KEY"))
		ts := r.Header.Get("KALSHI-ACCESS-TIMESTAMP")
		assert.Equal(t, "1773144000000", ts)
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		require.NoError(t, err)
		hash := sha256.Sum256([]byte(ts + http.MethodGet + r.URL.Path))
		assert.NoError(t, rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hash[:], sig,
			&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}))
		_, _ = w.Write([]byte(marketBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-id", time.Second)
	c.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	require.NoError(t, c.SetRSAPrivateKey(pemBytes))

	_, err = c.Market(context.Background(), "KXHIGHNY-26MAR10-B60")
	require.NoError(t, err)
}

func TestMarketNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code": "not_found", "message": "market not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Market(context.Background(), "NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "market not found")
}

func TestSetRSAPrivateKeyRejectsGarbage(t *testing.T) {
	assert.Error(t, NewClient("", "", 0).SetRSAPrivateKey([]byte("not a pem")))
}
