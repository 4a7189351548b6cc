package domain

import "time"

// SourceType is the credibility class of an evidence source.
type SourceType string

const (
	SourceWire       SourceType = "wire_service"
	SourceOfficial   SourceType = "official"
	SourceMainstream SourceType = "mainstream_news"
	SourceTrade      SourceType = "trade_press"
	SourceBlog       SourceType = "blog"
	SourceSocial     SourceType = "social"
	SourceUnknown    SourceType = "unknown"
)

// Tier orders source types from most (5) to least (0) credible.
func (s SourceType) Tier() int {
	switch s {
	case SourceWire:
		return 5
	case SourceOfficial:
		return 4
	case SourceMainstream:
		return 3
	case SourceTrade:
		return 2
	case SourceBlog, SourceSocial:
		return 1
	default:
		return 0
	}
}

// TimeWindow bounds an evidence search. Values are either relative
// expressions ("last_30_days", "now") or dates/timestamps.
type TimeWindow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ConfirmationSignals describe what evidence would settle either way.
type ConfirmationSignals struct {
	YesSignals []string `json:"yes_signals"`
	NoSignals  []string `json:"no_signals"`
}

// EvidencePlan is the search plan for an event-resolvable market.
type EvidencePlan struct {
	MarketID            string              `json:"marketId"`
	SearchQueries       []string            `json:"search_queries"`
	PrioritySourceTypes []SourceType        `json:"priority_source_types"`
	TimeWindow          TimeWindow          `json:"time_window"`
	ConfirmationSignals ConfirmationSignals `json:"confirmation_signals"`
	PrimaryAuthority    string              `json:"primary_authority"`
}

// EvidenceSource is one normalised search hit. URL is the dedup key.
type EvidenceSource struct {
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	Snippet       string     `json:"snippet"`
	SourceType    SourceType `json:"source_type"`
	PublishedDate string     `json:"published_date,omitempty"`
	SourceName    string     `json:"source_name,omitempty"`
	Provider      string     `json:"provider,omitempty"`
}

// DateRange is a resolved search window in calendar dates (YYYY-MM-DD).
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// EvidenceCorpus is the deduplicated set of sources gathered for a plan.
type EvidenceCorpus struct {
	QueriesUsed []string         `json:"query_used"`
	Sources     []EvidenceSource `json:"sources"`
	GatheredAt  time.Time        `json:"gathered_at"`
	Window      DateRange        `json:"time_window"`
}
