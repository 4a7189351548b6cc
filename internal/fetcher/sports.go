package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

const espnBaseURL = "https://site.api.espn.com/apis/site/v2/sports"

// SportsConfig configures the ESPN scoreboard fetcher.
type SportsConfig struct {
	BaseURL string
	Timeout time.Duration
	Clock   Clock
}

// SportsFetcher serves SPORTS_RESULT specs from the public ESPN scoreboard.
type SportsFetcher struct {
	baseURL string
	http    jsonGetter
	clock   Clock
}

// NewSportsFetcher creates a SportsFetcher.
func NewSportsFetcher(cfg SportsConfig) *SportsFetcher {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = espnBaseURL
	}
	return &SportsFetcher{baseURL: base, http: newJSONGetter(cfg.Timeout, 0), clock: cfg.Clock}
}

type espnScoreboard struct {
	Events []espnEvent `json:"events"`
}

type espnEvent struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Date         string            `json:"date"`
	Status       espnStatus        `json:"status"`
	Competitions []espnCompetition `json:"competitions"`
}

type espnStatus struct {
	Period int `json:"period"`
	Type   struct {
		Name        string `json:"name"`
		State       string `json:"state"`
		Completed   bool   `json:"completed"`
		Description string `json:"description"`
	} `json:"type"`
}

type espnCompetition struct {
	Competitors []espnCompetitor `json:"competitors"`
}

type espnCompetitor struct {
	HomeAway   string          `json:"homeAway"`
	Winner     bool            `json:"winner"`
	Score      espnScore       `json:"score"`
	Team       espnTeam        `json:"team"`
	Linescores []espnLinescore `json:"linescores"`
}

type espnTeam struct {
	DisplayName      string `json:"displayName"`
	ShortDisplayName string `json:"shortDisplayName"`
	Name             string `json:"name"`
	Location         string `json:"location"`
	Abbreviation     string `json:"abbreviation"`
}

type espnLinescore struct {
	Value espnScore `json:"value"`
}

// espnScore accepts scores sent as numbers or strings.
type espnScore struct {
	Value float64
	Set   bool
}

func (s *espnScore) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), `"`)
	if str == "" || str == "null" {
		*s = espnScore{}
		return nil
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		*s = espnScore{}
		return nil
	}
	*s = espnScore{Value: v, Set: true}
	return nil
}

var _ json.Unmarshaler = (*espnScore)(nil)

// normaliseTeam lowercases and keeps only letters and digits.
func normaliseTeam(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// teamMatches reports whether query names team. Names match by containment
// in either direction; abbreviations and very short queries must match
// exactly.
func teamMatches(query string, team espnTeam) bool {
	q := normaliseTeam(query)
	if q == "" {
		return false
	}
	if q == normaliseTeam(team.Abbreviation) {
		return true
	}
	for _, name := range []string{team.DisplayName, team.ShortDisplayName, team.Name, team.Location} {
		n := normaliseTeam(name)
		if n == "" {
			continue
		}
		if (len(q) >= 3 && strings.Contains(n, q)) || (len(n) >= 4 && strings.Contains(q, n)) {
			return true
		}
	}
	return false
}

// Fetch implements Fetcher.
func (f *SportsFetcher) Fetch(ctx context.Context, spec domain.DeterministicSpec) domain.FetchResult {
	const provider = "espn"
	now := f.clock.now()
	fields := spec.Fields
	data := map[string]any{
		"searched_teams": []string{fields.TeamA, fields.TeamB},
	}

	league, ok := LookupLeague(fields.Competition, fields.Sport)
	if !ok {
		return domain.FetchFailed(provider, fmt.Sprintf("unknown league for sport %q competition %q", fields.Sport, fields.Competition), data, now)
	}
	dateStr := fields.EventDate
	if dateStr == "" {
		dateStr = fields.ResolutionDate
	}
	day, ok := parseDate(dateStr)
	if !ok {
		return domain.FetchFailed(provider, fmt.Sprintf("unparseable event_date %q", dateStr), data, now)
	}
	data["date_searched"] = day.Format(time.DateOnly)
	data["league"] = league.League

	u := fmt.Sprintf("%s/%s/%s/scoreboard?dates=%s", f.baseURL, league.Sport, league.League, day.Format("20060102"))
	var board espnScoreboard
	if err := f.http.getJSON(ctx, u, &board); err != nil {
		return domain.FetchFailed(provider, fmt.Sprintf("scoreboard %s %s: %v", league.League, day.Format(time.DateOnly), err), data, now)
	}

	names := make([]string, 0, len(board.Events))
	for _, ev := range board.Events {
		names = append(names, ev.Name)
		if len(ev.Competitions) == 0 {
			continue
		}
		home, away, ok := sides(ev.Competitions[0].Competitors)
		if !ok {
			continue
		}
		aHome := teamMatches(fields.TeamA, home.Team) && teamMatches(fields.TeamB, away.Team)
		aAway := teamMatches(fields.TeamA, away.Team) && teamMatches(fields.TeamB, home.Team)
		if !aHome && !aAway {
			continue
		}
		teamA, teamB := home, away
		if aAway {
			teamA, teamB = away, home
		}
		return domain.FetchOK(provider, gameData(data, ev, home, away, teamA, teamB, league), now)
	}

	data["events_on_date"] = names
	return domain.FetchFailed(provider,
		fmt.Sprintf("No matching game found for %s vs %s on %s", fields.TeamA, fields.TeamB, day.Format(time.DateOnly)),
		data, now)
}

func sides(cs []espnCompetitor) (home, away espnCompetitor, ok bool) {
	var gotHome, gotAway bool
	for _, c := range cs {
		switch c.HomeAway {
		case "home":
			home, gotHome = c, true
		case "away":
			away, gotAway = c, true
		}
	}
	if !gotHome && !gotAway && len(cs) == 2 {
		return cs[0], cs[1], true
	}
	return home, away, gotHome && gotAway
}

func gameData(data map[string]any, ev espnEvent, home, away, teamA, teamB espnCompetitor, league League) map[string]any {
	status := ev.Status.Type
	data["event_id"] = ev.ID
	data["event_name"] = ev.Name
	data["home_team"] = home.Team.DisplayName
	data["away_team"] = away.Team.DisplayName
	data["home_score"] = home.Score.Value
	data["away_score"] = away.Score.Value
	data["team_a_name"] = teamA.Team.DisplayName
	data["team_b_name"] = teamB.Team.DisplayName
	data["team_a_score"] = teamA.Score.Value
	data["team_b_score"] = teamB.Score.Value
	data["status"] = status.Name
	data["status_detail"] = status.Description
	data["completed"] = status.Completed
	data["period"] = ev.Status.Period
	data["regulation_periods"] = league.Periods
	data["overtime"] = league.Periods > 0 && ev.Status.Period > league.Periods

	upper := strings.ToUpper(status.Name)
	data["postponed"] = strings.Contains(upper, "POSTPONED") ||
		strings.Contains(upper, "CANCELED") ||
		strings.Contains(upper, "CANCELLED")

	switch {
	case !status.Completed:
		data["winner"] = ""
	case home.Score.Value > away.Score.Value:
		data["winner"] = home.Team.DisplayName
	case away.Score.Value > home.Score.Value:
		data["winner"] = away.Team.DisplayName
	default:
		data["winner"] = "DRAW"
	}

	if a, ok := regulationScore(teamA.Linescores, league.Periods); ok {
		if b, ok := regulationScore(teamB.Linescores, league.Periods); ok {
			data["team_a_regulation_score"] = a
			data["team_b_regulation_score"] = b
		}
	}
	return data
}

// regulationScore sums the first periods line scores.
func regulationScore(lines []espnLinescore, periods int) (float64, bool) {
	if periods <= 0 || len(lines) < periods {
		return 0, false
	}
	var total float64
	for _, l := range lines[:periods] {
		total += l.Value.Value
	}
	return total, true
}

var _ Fetcher = (*SportsFetcher)(nil)
