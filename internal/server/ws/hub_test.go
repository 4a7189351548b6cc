package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Signer: "0xabc"})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) envelopeIn {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelopeIn
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

type envelopeIn struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastsResults(t *testing.T) {
	hub, srv := startHub(t)
	all := dial(t, srv, "")
	one := dial(t, srv, "?market=m2")
	waitClients(t, hub, 2)

	hello := readFrame(t, all)
	assert.Equal(t, "hello", hello.Type)
	assert.Contains(t, string(hello.Payload), "0xabc")
	assert.Equal(t, "hello", readFrame(t, one).Type)

	hub.BroadcastResult(domain.ResolutionResult{MarketID: "m1", SettlementAction: domain.ActionSettle})
	hub.BroadcastResult(domain.ResolutionResult{MarketID: "m2", SettlementAction: domain.ActionDefer})

	var r domain.ResolutionResult
	env := readFrame(t, all)
	assert.Equal(t, "resolution", env.Type)
	require.NoError(t, json.Unmarshal(env.Payload, &r))
	assert.Equal(t, "m1", r.MarketID)
	require.NoError(t, json.Unmarshal(readFrame(t, all).Payload, &r))
	assert.Equal(t, "m2", r.MarketID)

	// The narrowed client only sees m2.
	require.NoError(t, json.Unmarshal(readFrame(t, one).Payload, &r))
	assert.Equal(t, "m2", r.MarketID)
}

func TestHubSubscriptionChanges(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?market=none")
	waitClients(t, hub, 1)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "subscribe", Topics: []string{"action:ESCALATE"}}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.subscribedAny([]string{"action:ESCALATE"}) {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastResult(domain.ResolutionResult{MarketID: "a", SettlementAction: domain.ActionSettle})
	hub.BroadcastResult(domain.ResolutionResult{MarketID: "b", SettlementAction: domain.ActionEscalate})

	var r domain.ResolutionResult
	require.NoError(t, json.Unmarshal(readFrame(t, conn).Payload, &r))
	assert.Equal(t, "b", r.MarketID)
}

func TestHubDisconnect(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)
	conn.Close()
	waitClients(t, hub, 0)
}
