package domain

import "strings"

// Category is the resolution track chosen for a market.
type Category string

const (
	CategoryData       Category = "DATA_RESOLVABLE"
	CategoryEvent      Category = "EVENT_RESOLVABLE"
	CategorySubjective Category = "SUBJECTIVE"
	CategoryMalformed  Category = "MALFORMED"
)

// ParseCategory maps a category label to a Category. Legacy letter labels are
// accepted; anything unrecognised becomes CategoryMalformed with ok=false.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DATA_RESOLVABLE", "CATEGORY_A", "DETERMINISTIC":
		return CategoryData, true
	case "EVENT_RESOLVABLE", "CATEGORY_B":
		return CategoryEvent, true
	case "SUBJECTIVE", "CATEGORY_C":
		return CategorySubjective, true
	case "MALFORMED":
		return CategoryMalformed, true
	default:
		return CategoryMalformed, false
	}
}

// Resolvable reports whether markets in this category can reach a fetcher or
// the evidence gatherer.
func (c Category) Resolvable() bool {
	return c == CategoryData || c == CategoryEvent
}

// Classification flags.
const (
	FlagLowConfidenceClassification = "LOW_CONFIDENCE_CLASSIFICATION"
	FlagMissingDeadline             = "MISSING_DEADLINE"
	FlagUnknownCategory             = "UNKNOWN_CATEGORY"
	FlagPipelineError               = "PIPELINE_ERROR"
)

// LowConfidenceThreshold is the classification confidence below which a
// market is flagged for human clarification.
const LowConfidenceThreshold = 0.60

// Classification is the intake decision for one market.
type Classification struct {
	MarketID              string   `json:"marketId"`
	Category              Category `json:"category"`
	Confidence            float64  `json:"confidence"`
	Reasoning             string   `json:"reasoning"`
	ResolutionApproach    string   `json:"resolution_approach,omitempty"`
	DataSourceHint        string   `json:"data_source_hint,omitempty"`
	FallbackCategory      Category `json:"fallback_category,omitempty"`
	Flags                 []string `json:"flags"`
	RequiresClarification bool     `json:"requires_clarification"`
	ClarificationNeeded   string   `json:"clarification_needed,omitempty"`
}

// HasFlag reports whether flag is present.
func (c Classification) HasFlag(flag string) bool {
	return containsFlag(c.Flags, flag)
}

func containsFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

// appendFlag adds flag when it is not already present.
func appendFlag(flags []string, flag string) []string {
	if containsFlag(flags, flag) {
		return flags
	}
	return append(flags, flag)
}

// AddFlag records flag once on the classification.
func (c *Classification) AddFlag(flag string) {
	c.Flags = appendFlag(c.Flags, flag)
}
