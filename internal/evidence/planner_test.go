package evidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/inference"
	"github.com/alanyoungcy/polyoracle/internal/inference/inferencetest"
)

func fedMarket() domain.Market {
	return domain.Market{
		ID:                 "fed-cut-march",
		Question:           "Will the Fed cut rates at the March 2026 FOMC meeting?",
		ResolutionCriteria: "Resolves YES if the FOMC statement announces a lower target range.",
		Deadline:           "2026-03-18T23:59:59Z",
	}
}

func TestPlanNormalisesQueries(t *testing.T) {
	llm := inferencetest.New().Reply(inference.PlannerPrompt, "```json\n"+`{
		"search_queries": ["FOMC statement March 2026", "  fomc statement   march 2026 ", "Fed rate decision Reuters",
			"Powell press conference", "fed funds target range", "CME FedWatch", "extra"],
		"priority_source_types": ["official", "wire_service", "tabloid"],
		"time_window": {"from": "2026-03-01", "to": "now"},
		"confirmation_signals": {"yes_signals": ["target range lowered"], "no_signals": ["rates unchanged"]},
		"primary_authority": "Federal Reserve"
	}`+"\n```")

	plan, err := NewPlanner(llm, discard()).Plan(context.Background(), fedMarket())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"FOMC statement March 2026", "Fed rate decision Reuters", "Powell press conference",
		"fed funds target range", "CME FedWatch",
	}, plan.SearchQueries)
	assert.Equal(t, []domain.SourceType{domain.SourceOfficial, domain.SourceWire}, plan.PrioritySourceTypes)
	assert.Equal(t, domain.TimeWindow{From: "2026-03-01", To: "now"}, plan.TimeWindow)
	assert.Equal(t, "fed-cut-march", plan.MarketID)
	assert.Equal(t, "Federal Reserve", plan.PrimaryAuthority)
}

func TestPlanTopsUpQueriesAndWindow(t *testing.T) {
	llm := inferencetest.New().Reply(inference.PlannerPrompt, `{"search_queries": ["FOMC March decision"]}`)

	plan, err := NewPlanner(llm, discard()).Plan(context.Background(), fedMarket())
	require.NoError(t, err)
	require.Len(t, plan.SearchQueries, MinQueries)
	assert.Equal(t, "FOMC March decision", plan.SearchQueries[0])
	assert.Equal(t, "Will the Fed cut rates at the March 2026 FOMC meeting", plan.SearchQueries[1])
	assert.Contains(t, plan.SearchQueries[2], "official announcement")
	assert.Equal(t, domain.TimeWindow{From: "last_30_days", To: "now"}, plan.TimeWindow)
	assert.NotEmpty(t, plan.PrioritySourceTypes)
	assert.NotNil(t, plan.ConfirmationSignals.YesSignals)
}

func TestPlanInferenceFailure(t *testing.T) {
	_, err := NewPlanner(inferencetest.New(), discard()).Plan(context.Background(), fedMarket())
	assert.ErrorIs(t, err, domain.ErrInferenceUnavailable)
}
