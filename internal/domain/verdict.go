package domain

// Outcome is the answer to a market question.
type Outcome string

const (
	OutcomeYes          Outcome = "YES"
	OutcomeNo           Outcome = "NO"
	OutcomeUndetermined Outcome = "UNDETERMINED"
)

// ParseOutcome maps a label to an Outcome; unknown labels are UNDETERMINED.
func ParseOutcome(s string) Outcome {
	switch Outcome(s) {
	case OutcomeYes, OutcomeNo:
		return Outcome(s)
	default:
		return OutcomeUndetermined
	}
}

// Relevance grades how directly a source addresses the market question.
type Relevance string

const (
	RelevanceDirect     Relevance = "direct"
	RelevanceIndirect   Relevance = "indirect"
	RelevanceTangential Relevance = "tangential"
)

// Stance is the direction a source points.
type Stance string

const (
	StanceYes     Stance = "YES"
	StanceNo      Stance = "NO"
	StanceNeutral Stance = "NEUTRAL"
)

// SourceAssessment is the evaluator's view of one corpus source.
type SourceAssessment struct {
	SourceTitle string     `json:"source_title"`
	SourceURL   string     `json:"source_url,omitempty"`
	SourceType  SourceType `json:"source_type,omitempty"`
	Credibility float64    `json:"credibility"`
	Relevance   Relevance  `json:"relevance"`
	Claim       string     `json:"claim"`
	Supports    Stance     `json:"supports"`
}

// DataSummary explains a deterministic comparison.
type DataSummary struct {
	FetchedValue     string `json:"fetched_value"`
	Threshold        string `json:"threshold"`
	Comparator       string `json:"comparator"`
	ComparisonResult string `json:"comparison_result"`
}

// Verdict flags.
const (
	FlagNoEvidence             = "NO_EVIDENCE"
	FlagSingleSourceCap        = "SINGLE_SOURCE_CAP"
	FlagNoOfficialConfirmation = "NO_OFFICIAL_CONFIRMATION"
	FlagOfficialOverride       = "OFFICIAL_SOURCE_OVERRIDE"
	FlagDeadlineNotPassed      = "DEADLINE_NOT_PASSED"
	FlagAbsenceNotEvidence     = "ABSENCE_NOT_EVIDENCE"
	FlagFetchFailed            = "FETCH_FAILED"
	FlagUnsupportedStrategy    = "UNSUPPORTED_STRATEGY"
	FlagWindowOpen             = "RESOLUTION_WINDOW_OPEN"
	FlagEventNotFinal          = "EVENT_NOT_FINAL"
	FlagEventVoid              = "EVENT_POSTPONED_OR_CANCELLED"
	FlagUnitConverted          = "UNIT_CONVERTED"
	FlagUnitMismatch           = "UNIT_MISMATCH"
	FlagQuoteCurrencyProxy     = "QUOTE_CURRENCY_PROXY"
	FlagNonExactDate           = "NON_EXACT_DATE"
	FlagMissingValue           = "MISSING_VALUE"
	FlagInvalidThreshold       = "INVALID_THRESHOLD"
	FlagOvertimeExcluded       = "OVERTIME_EXCLUDED"
	FlagMetricUnsupported      = "METRIC_UNSUPPORTED"
)

// Verdict is a YES/NO/UNDETERMINED answer with confidence and provenance.
type Verdict struct {
	Outcome              Outcome            `json:"outcome"`
	Confidence           float64            `json:"confidence"`
	Reasoning            string             `json:"reasoning"`
	Summary              string             `json:"summary,omitempty"`
	DataSummary          *DataSummary       `json:"data_summary,omitempty"`
	SourceAnalysis       []SourceAssessment `json:"source_analysis,omitempty"`
	SupportingSources    []string           `json:"supporting_sources,omitempty"`
	ContradictingSources []string           `json:"contradicting_sources,omitempty"`
	Flags                []string           `json:"flags"`
	TemporalNotes        string             `json:"temporal_notes,omitempty"`
}

// AddFlag records flag once on the verdict.
func (v *Verdict) AddFlag(flag string) {
	v.Flags = appendFlag(v.Flags, flag)
}

// HasFlag reports whether flag is present.
func (v Verdict) HasFlag(flag string) bool {
	return containsFlag(v.Flags, flag)
}

// CapConfidence lowers the confidence to at most max.
func (v *Verdict) CapConfidence(max float64) {
	if v.Confidence > max {
		v.Confidence = max
	}
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0 || c != c:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
