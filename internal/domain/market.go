package domain

import (
	"strings"
	"time"
)

// Market is a prediction-market question submitted for resolution. It is
// immutable input to the pipeline.
type Market struct {
	ID                 string         `json:"marketId"`
	Question           string         `json:"question"`
	ResolutionCriteria string         `json:"resolution_criteria"`
	Deadline           string         `json:"deadline"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// deadlineLayouts are the timestamp formats accepted for Market.Deadline.
var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// HasDeadline reports whether the market carries a non-blank deadline.
func (m Market) HasDeadline() bool {
	return strings.TrimSpace(m.Deadline) != ""
}

// DeadlineTime parses the deadline. Date-only deadlines resolve to the end of
// that day in UTC. The second return is false when the deadline is empty or
// not a recognised timestamp.
func (m Market) DeadlineTime() (time.Time, bool) {
	raw := strings.TrimSpace(m.Deadline)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range deadlineLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t.UTC(), true
	}
	return time.Time{}, false
}
