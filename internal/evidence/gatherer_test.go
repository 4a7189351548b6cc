package evidence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeProvider struct {
	name string
	fn   func(query string) ([]domain.EvidenceSource, error)

	mu      sync.Mutex
	windows []domain.DateRange
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(_ context.Context, q string, w domain.DateRange) ([]domain.EvidenceSource, error) {
	f.mu.Lock()
	f.windows = append(f.windows, w)
	f.mu.Unlock()
	return f.fn(q)
}

func src(title, url string) domain.EvidenceSource {
	return domain.EvidenceSource{Title: title, URL: url, SourceType: domain.SourceUnknown}
}

func TestGatherToleratesProviderFailure(t *testing.T) {
	good := &fakeProvider{name: "good", fn: func(q string) ([]domain.EvidenceSource, error) {
		return []domain.EvidenceSource{src(q+" story", "https://news/"+q), src("shared", "https://news/shared")}, nil
	}}
	bad := &fakeProvider{name: "bad", fn: func(string) ([]domain.EvidenceSource, error) {
		return nil, errors.New("connection refused")
	}}
	panicky := &fakeProvider{name: "panicky", fn: func(string) ([]domain.EvidenceSource, error) {
		panic("nil map")
	}}

	g := NewGatherer([]Provider{bad, good, panicky}, func() time.Time { return now }, discard())
	corpus := g.Gather(context.Background(), domain.EvidencePlan{
		MarketID:      "m1",
		SearchQueries: []string{"q1", "q2"},
		TimeWindow:    domain.TimeWindow{From: "last_7_days", To: "now"},
	})

	assert.Equal(t, []string{"q1 story", "shared", "q2 story"}, titles(corpus.Sources))
	assert.Equal(t, []string{"q1", "q2"}, corpus.QueriesUsed)
	assert.Equal(t, domain.DateRange{From: "2026-03-03", To: "2026-03-10"}, corpus.Window)
	for _, s := range corpus.Sources {
		assert.Equal(t, "good", s.Provider)
	}
	require.Len(t, good.windows, 2)
	assert.Equal(t, corpus.Window, good.windows[0])
}

func TestGatherAllProvidersDown(t *testing.T) {
	bad := &fakeProvider{name: "bad", fn: func(string) ([]domain.EvidenceSource, error) {
		return nil, domain.ErrProviderUnavailable
	}}
	corpus := NewGatherer([]Provider{bad}, func() time.Time { return now }, discard()).
		Gather(context.Background(), domain.EvidencePlan{SearchQueries: []string{"a", "b", "c"}})
	assert.Empty(t, corpus.Sources)
	assert.NotNil(t, corpus.Sources)
	assert.Equal(t, now, corpus.GatheredAt)
}
