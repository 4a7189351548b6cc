package evidence

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// DefaultLookbackDays applies when a window has no usable start.
const DefaultLookbackDays = 30

var relativeRe = regexp.MustCompile(`^last[_ ]?(\d+)[_ ]?(day|week|month)s?$`)

var windowLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ResolveWindow normalises a plan's time window to calendar dates relative to
// now. Relative expressions ("last_30_days", "last 2 weeks"), plain dates and
// full timestamps are accepted; an empty or "now" end is today. Anything
// unparseable falls back to the default lookback for the start and today for
// the end.
func ResolveWindow(tw domain.TimeWindow, now time.Time) domain.DateRange {
	now = now.UTC()
	todayStr := now.Format(time.DateOnly)

	to := parseBound(tw.To, now)
	if to == "" {
		to = todayStr
	}
	from := parseBound(tw.From, now)
	if from == "" || strings.EqualFold(strings.TrimSpace(tw.From), "now") {
		from = now.AddDate(0, 0, -DefaultLookbackDays).Format(time.DateOnly)
	}
	if from > to {
		from, to = to, from
	}
	return domain.DateRange{From: from, To: to}
}

// parseBound converts one bound to YYYY-MM-DD or returns "".
func parseBound(s string, now time.Time) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "now", "today":
		if s == "" {
			return ""
		}
		return now.Format(time.DateOnly)
	}
	if m := relativeRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return ""
		}
		days := n
		switch m[2] {
		case "week":
			days = n * 7
		case "month":
			days = n * 30
		}
		return now.AddDate(0, 0, -days).Format(time.DateOnly)
	}
	if len(s) == 10 {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			return t.Format(time.DateOnly)
		}
		return ""
	}
	for _, layout := range windowLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(s)); err == nil {
			return t.UTC().Format(time.DateOnly)
		}
	}
	return ""
}
