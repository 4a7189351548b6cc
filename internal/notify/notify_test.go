package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResultEvent(t *testing.T) {
	tests := []struct {
		name   string
		result domain.ResolutionResult
		want   string
		ok     bool
	}{
		{"settle", domain.ResolutionResult{SettlementAction: domain.ActionSettle}, EventSettle, true},
		{"escalate", domain.ResolutionResult{SettlementAction: domain.ActionEscalate}, EventEscalate, true},
		{"reject", domain.ResolutionResult{SettlementAction: domain.ActionReject}, EventReject, true},
		{"pipeline error wins over reject", domain.ResolutionResult{
			SettlementAction: domain.ActionReject, Flags: []string{domain.FlagPipelineError},
		}, EventPipelineError, true},
		{"defer is silent", domain.ResolutionResult{SettlementAction: domain.ActionDefer}, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ResultEvent(tc.result)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestNotifyResultFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"escalate", " Pipeline_Error "}, discardLogger())
	ctx := context.Background()
	m := domain.Market{ID: "m1", Question: "Will it rain?"}

	require.NoError(t, n.NotifyResult(ctx, m, domain.ResolutionResult{MarketID: "m1", SettlementAction: domain.ActionSettle, Outcome: domain.OutcomeYes}))
	require.NoError(t, n.NotifyResult(ctx, m, domain.ResolutionResult{MarketID: "m1", SettlementAction: domain.ActionDefer}))
	require.NoError(t, n.NotifyResult(ctx, m, domain.ResolutionResult{MarketID: "m1", SettlementAction: domain.ActionEscalate, Outcome: domain.OutcomeUndetermined}))
	require.NoError(t, n.NotifyResult(ctx, m, domain.ResolutionResult{
		MarketID: "m1", SettlementAction: domain.ActionReject, Outcome: domain.OutcomeUndetermined,
		Flags: []string{domain.FlagPipelineError},
	}))

	assert.Equal(t, []string{"ESCALATE UNDETERMINED: m1", "REJECT UNDETERMINED: m1"}, s.titles)
}

func TestDispatchCollectsFailures(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventSettle, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.titles, 1, "later senders still run")
	assert.True(t, n.Enabled())
	assert.False(t, NewNotifier(nil, nil, discardLogger()).Enabled())
}

func TestFormatResultTruncatesReasoning(t *testing.T) {
	long := strings.Repeat("é", 700)
	title, msg := FormatResult(domain.Market{Question: "Q?"}, domain.ResolutionResult{
		MarketID: "m1", SettlementAction: domain.ActionEscalate, Outcome: domain.OutcomeUndetermined,
		Category: domain.CategoryEvent, Confidence: 0.5, Flags: []string{"SINGLE_SOURCE"}, Reasoning: long,
	})
	assert.Equal(t, "ESCALATE UNDETERMINED: m1", title)
	assert.Contains(t, msg, "Q?\ncategory EVENT_RESOLVABLE, confidence 0.50\nflags: SINGLE_SOURCE\n")
	assert.True(t, strings.HasSuffix(msg, "é..."))
	assert.Equal(t, 600, strings.Count(msg, "é"))
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "ESCALATE UNDETERMINED: m1", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "ESCALATE UNDETERMINED: m1\n\nbody", got["text"])
}

func TestDiscordSender(t *testing.T) {
	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "SETTLE YES: m1", "body"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, 0x2ecc71, got.Embeds[0].Color)

	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer fail.Close()
	assert.ErrorContains(t, NewDiscordSender(fail.URL).Send(context.Background(), "t", "m"), "unexpected status 400")
}
