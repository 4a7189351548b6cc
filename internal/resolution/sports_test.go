package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

func sportsSpec(outcome, target string) domain.DeterministicSpec {
	return domain.DeterministicSpec{
		StrategyType: domain.StrategySportsResult,
		Fields: domain.SpecFields{
			Sport: "basketball", Competition: "NBA", TeamA: "Lakers", TeamB: "Celtics",
			EventDate: "2026-03-08", OutcomeType: outcome, TargetTeam: target,
		},
	}
}

func game(a, b float64, overrides map[string]any) domain.FetchResult {
	data := map[string]any{
		"event_name": "Boston Celtics at Los Angeles Lakers",
		"team_a_name": "Los Angeles Lakers", "team_b_name": "Boston Celtics",
		"team_a_score": a, "team_b_score": b,
		"completed": true, "postponed": false, "status": "STATUS_FINAL",
	}
	for k, v := range overrides {
		data[k] = v
	}
	return domain.FetchOK("espn", data, at)
}

func TestSportsWin(t *testing.T) {
	v := newAgent().Resolve(market(), sportsSpec("win", "Lakers"), game(118, 112, nil))
	assert.Equal(t, domain.OutcomeYes, v.Outcome)
	assert.InDelta(t, ConfidenceExact, v.Confidence, 1e-9)

	v = newAgent().Resolve(market(), sportsSpec("win", "Celtics"), game(118, 112, nil))
	assert.Equal(t, domain.OutcomeNo, v.Outcome)
}

func TestSportsDraw(t *testing.T) {
	v := newAgent().Resolve(market(), sportsSpec("draw", ""), game(1, 1, nil))
	assert.Equal(t, domain.OutcomeYes, v.Outcome)
}

func TestSportsOvertimeCountsByDefault(t *testing.T) {
	fetch := game(118, 112, map[string]any{
		"overtime": true, "team_a_regulation_score": 110.0, "team_b_regulation_score": 110.0,
	})
	v := newAgent().Resolve(market(), sportsSpec("win", "Lakers"), fetch)
	assert.Equal(t, domain.OutcomeYes, v.Outcome)
	assert.False(t, v.HasFlag(domain.FlagOvertimeExcluded))
}

func TestSportsExcludeOvertimeUsesRegulation(t *testing.T) {
	fetch := game(118, 112, map[string]any{
		"overtime": true, "team_a_regulation_score": 110.0, "team_b_regulation_score": 110.0,
	})
	spec := sportsSpec("win", "Lakers")
	spec.Fields.ExcludeOvertime = true
	v := newAgent().Resolve(market(), spec, fetch)
	assert.Equal(t, domain.OutcomeNo, v.Outcome)
	assert.True(t, v.HasFlag(domain.FlagOvertimeExcluded))
}

func TestSportsPostponed(t *testing.T) {
	v := newAgent().Resolve(market(), sportsSpec("win", "Lakers"),
		game(0, 0, map[string]any{"postponed": true, "completed": false, "status": "STATUS_POSTPONED"}))
	assert.Equal(t, domain.OutcomeUndetermined, v.Outcome)
	assert.True(t, v.HasFlag(domain.FlagEventVoid))
	assert.Equal(t, domain.ActionEscalate, domain.DecideSettlement(domain.CategoryData, v.Confidence))
}

func TestSportsInProgress(t *testing.T) {
	v := newAgent().Resolve(market(), sportsSpec("win", "Lakers"),
		game(60, 58, map[string]any{"completed": false, "status": "STATUS_IN_PROGRESS"}))
	assert.Equal(t, domain.OutcomeUndetermined, v.Outcome)
	assert.True(t, v.HasFlag(domain.FlagEventNotFinal))
}

func TestSportsTotalOver(t *testing.T) {
	spec := sportsSpec("score_over", "")
	spec.Fields.Threshold = domain.NewThreshold("229.5")
	v := newAgent().Resolve(market(), spec, game(118, 112, nil))
	assert.Equal(t, domain.OutcomeYes, v.Outcome)
}
