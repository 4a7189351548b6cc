package resolution

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

func normName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sameTeam reports whether target names the team given as query in the
// spec or fetched as name.
func sameTeam(target, query, name string) bool {
	t := normName(target)
	if t == "" {
		return false
	}
	for _, c := range []string{normName(query), normName(name)} {
		if c != "" && (c == t || strings.Contains(c, t) || strings.Contains(t, c)) {
			return true
		}
	}
	return false
}

func resolveSports(fields domain.SpecFields, fetch domain.FetchResult) domain.Verdict {
	game := fetch.String("event_name")
	if game == "" {
		game = fmt.Sprintf("%s vs %s", fields.TeamA, fields.TeamB)
	}
	if fetch.Bool("postponed", false) {
		v := undetermined(0, "%s was postponed or cancelled (%s).", game, fetch.String("status"))
		v.AddFlag(domain.FlagEventVoid)
		return v
	}
	if !fetch.Bool("completed", false) {
		v := windowOpen("%s is not final (%s); only the final score counts.", game, fetch.String("status_detail"))
		v.AddFlag(domain.FlagEventNotFinal)
		return v
	}

	v := domain.Verdict{Flags: []string{}}
	aKey, bKey := "team_a_score", "team_b_score"
	if fields.ExcludeOvertime {
		if _, ok := fetch.Float("team_a_regulation_score"); ok {
			aKey, bKey = "team_a_regulation_score", "team_b_regulation_score"
			v.AddFlag(domain.FlagOvertimeExcluded)
		} else if fetch.Bool("overtime", false) {
			out := undetermined(0, "%s went to overtime and no regulation score is available.", game)
			out.AddFlag(domain.FlagMissingValue)
			return out
		}
	}
	aScore, okA := fetch.Float(aKey)
	bScore, okB := fetch.Float(bKey)
	if !okA || !okB {
		out := undetermined(0, "Final score for %s is missing.", game)
		out.AddFlag(domain.FlagMissingValue)
		return out
	}
	teamA, teamB := fetch.String("team_a_name"), fetch.String("team_b_name")
	score := fmt.Sprintf("%s %g, %s %g", teamA, aScore, teamB, bScore)

	outcome := strings.ToLower(strings.TrimSpace(fields.OutcomeType))
	switch outcome {
	case "score_over", "total_over", "over", "score_under", "total_under", "under":
		total := decimal.NewFromFloat(aScore).Add(decimal.NewFromFloat(bScore))
		f := fields
		if f.Comparator == "" {
			f.Comparator = string(domain.CompGreater)
			if strings.Contains(outcome, "under") {
				f.Comparator = string(domain.CompLess)
			}
		}
		v.Reasoning = " Final: " + score + "."
		return compareThreshold(f, total, "total score", ConfidenceExact, v)
	}

	target := fields.TargetTeam
	if target == "" {
		target = fields.TeamA
	}
	var mine, theirs float64
	switch {
	case sameTeam(target, fields.TeamA, teamA):
		mine, theirs = aScore, bScore
	case sameTeam(target, fields.TeamB, teamB):
		mine, theirs = bScore, aScore
	default:
		out := undetermined(0, "Target team %q is not in %s.", target, game)
		out.AddFlag(domain.FlagMissingValue)
		return out
	}

	var met bool
	switch outcome {
	case "", "win", "winner", "moneyline":
		met = mine > theirs
	case "loss", "lose", "lost":
		met = mine < theirs
	case "draw", "tie":
		met = mine == theirs
	default:
		out := undetermined(0, "Outcome type %q is not supported.", fields.OutcomeType)
		out.AddFlag(domain.FlagMetricUnsupported)
		return out
	}

	v.Outcome = domain.OutcomeNo
	if met {
		v.Outcome = domain.OutcomeYes
	}
	v.Confidence = ConfidenceExact
	if outcome == "" {
		outcome = "win"
	}
	v.DataSummary = &domain.DataSummary{
		FetchedValue:     score,
		Threshold:        target,
		Comparator:       outcome,
		ComparisonResult: fmt.Sprintf("%s %s is %t", target, outcome, met),
	}
	v.Reasoning = fmt.Sprintf("Final: %s (winner %s). %s %s is %t.", score, fetch.String("winner"), target, outcome, met)
	if v.HasFlag(domain.FlagOvertimeExcluded) {
		v.Reasoning += " Regulation score used; overtime excluded."
	}
	return v
}
