package domain

import "time"

// SettlementAction is what downstream settlement should do with a result.
type SettlementAction string

const (
	ActionSettle   SettlementAction = "SETTLE"
	ActionDefer    SettlementAction = "DEFER"
	ActionEscalate SettlementAction = "ESCALATE"
	ActionReject   SettlementAction = "REJECT"
)

// Settlement thresholds.
const (
	SettleThreshold = 0.85
	DeferThreshold  = 0.70
)

// UndeterminedCeiling is the highest confidence an UNDETERMINED verdict may
// carry; it keeps such verdicts below SettleThreshold.
const UndeterminedCeiling = 0.84

// DecideSettlement maps a category and confidence to an action.
// SUBJECTIVE and MALFORMED always REJECT.
func DecideSettlement(category Category, confidence float64) SettlementAction {
	if !category.Resolvable() {
		return ActionReject
	}
	switch {
	case confidence >= SettleThreshold:
		return ActionSettle
	case confidence >= DeferThreshold:
		return ActionDefer
	default:
		return ActionEscalate
	}
}

// EvidenceTrail is the provenance attached to a result.
type EvidenceTrail struct {
	SourcesConsulted  int              `json:"sources_consulted"`
	Sources           []EvidenceSource `json:"sources"`
	EvaluationSummary string           `json:"evaluation_summary"`
	Fetch             *FetchResult     `json:"fetch,omitempty"`
}

// ResolutionResult is the single record emitted per market per invocation.
type ResolutionResult struct {
	MarketID          string             `json:"marketId"`
	RunID             string             `json:"run_id,omitempty"`
	Category          Category           `json:"category"`
	Outcome           Outcome            `json:"outcome"`
	Confidence        float64            `json:"confidence"`
	SettlementAction  SettlementAction   `json:"settlement_action"`
	Reasoning         string             `json:"reasoning"`
	EvidenceTrail     EvidenceTrail      `json:"evidence_trail"`
	DeterministicSpec *DeterministicSpec `json:"deterministic_spec,omitempty"`
	Flags             []string           `json:"flags"`
	ResolvedAt        time.Time          `json:"resolved_at"`
	Attestation       *Attestation       `json:"attestation,omitempty"`
}

// Attestation is the oracle's EIP-712 signature over a result.
type Attestation struct {
	Signer    string `json:"signer"`
	ChainID   int64  `json:"chain_id"`
	Digest    string `json:"digest"`
	Signature string `json:"signature"`
}

// ResultSigner attests results with the oracle key.
type ResultSigner interface {
	Sign(result ResolutionResult) (Attestation, error)
}

// HasFlag reports whether flag is present.
func (r ResolutionResult) HasFlag(flag string) bool {
	return containsFlag(r.Flags, flag)
}

// AddFlag records flag once on the result.
func (r *ResolutionResult) AddFlag(flag string) {
	r.Flags = appendFlag(r.Flags, flag)
}

// FlagSpecRejected marks a data-resolvable market whose spec could not be
// parsed.
const FlagSpecRejected = "SPEC_REJECTED"

// ResultFilter narrows stored result listings.
type ResultFilter struct {
	MarketID string
	Category Category
	Action   SettlementAction
	Limit    int
	Offset   int
	Since    *time.Time
}
