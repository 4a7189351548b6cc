package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// StrategyType names the deterministic data-fetch strategy for a market.
type StrategyType string

const (
	StrategyCryptoSpot   StrategyType = "CRYPTO_PRICE_SPOT"
	StrategyCryptoTWAP   StrategyType = "CRYPTO_PRICE_TWAP"
	StrategyStockClose   StrategyType = "STOCK_CLOSE_PRICE"
	StrategyOnchainQuery StrategyType = "ONCHAIN_QUERY"
	StrategySportsResult StrategyType = "SPORTS_RESULT"
	StrategyWeather      StrategyType = "WEATHER_API"
	StrategyEconomicData StrategyType = "ECONOMIC_DATA"
)

// StrategyTypes lists every known strategy in declaration order.
var StrategyTypes = []StrategyType{
	StrategyCryptoSpot,
	StrategyCryptoTWAP,
	StrategyStockClose,
	StrategyOnchainQuery,
	StrategySportsResult,
	StrategyWeather,
	StrategyEconomicData,
}

// Valid reports whether s is a known strategy type.
func (s StrategyType) Valid() bool {
	for _, known := range StrategyTypes {
		if s == known {
			return true
		}
	}
	return false
}

// Comparator is the relation between a fetched value and a threshold.
type Comparator string

const (
	CompGreater      Comparator = ">"
	CompLess         Comparator = "<"
	CompEqual        Comparator = "="
	CompGreaterEqual Comparator = ">="
	CompLessEqual    Comparator = "<="
)

// ParseComparator normalises the comparator spellings seen in parsed specs.
func ParseComparator(s string) (Comparator, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ">", "gt", "above", "greater_than":
		return CompGreater, true
	case "<", "lt", "below", "less_than":
		return CompLess, true
	case "=", "==", "eq", "equals":
		return CompEqual, true
	case ">=", "gte", "at_least":
		return CompGreaterEqual, true
	case "<=", "lte", "at_most":
		return CompLessEqual, true
	default:
		return "", false
	}
}

// Threshold is a spec threshold. Numeric JSON values and numeric strings are
// held as an exact decimal; any other string is kept verbatim in Raw.
type Threshold struct {
	Value   decimal.Decimal
	Raw     string
	Set     bool
	Numeric bool
}

// NewThreshold returns a numeric threshold.
func NewThreshold(v string) Threshold {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return Threshold{Raw: v, Set: true}
	}
	return Threshold{Value: d, Raw: v, Set: true, Numeric: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Threshold) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = Threshold{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("domain: decode threshold: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*t = Threshold{}
			return nil
		}
		*t = NewThreshold(strings.NewReplacer(",", "", "$", "").Replace(s))
		if !t.Numeric {
			t.Raw = s
		}
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("domain: decode threshold %s: %w", b, err)
	}
	*t = Threshold{Value: d, Raw: string(b), Set: true, Numeric: true}
	return nil
}

// MarshalJSON implements json.Marshaler. Numeric thresholds are emitted as
// JSON numbers.
func (t Threshold) MarshalJSON() ([]byte, error) {
	switch {
	case !t.Set:
		return []byte("null"), nil
	case t.Numeric:
		return []byte(t.Value.String()), nil
	default:
		return json.Marshal(t.Raw)
	}
}

// String returns the threshold as written.
func (t Threshold) String() string {
	if t.Numeric {
		return t.Value.String()
	}
	return t.Raw
}

// SpecFields is the union of extraction fields across strategies. Only the
// fields relevant to the chosen strategy are populated.
type SpecFields struct {
	// crypto
	Asset             string   `json:"asset,omitempty"`
	Pair              string   `json:"pair,omitempty"`
	AggregationMethod string   `json:"aggregation_method,omitempty"`
	Window            string   `json:"window,omitempty"`
	Sources           []string `json:"sources,omitempty"`

	// shared comparison
	Comparator     string    `json:"comparator,omitempty"`
	Threshold      Threshold `json:"threshold"`
	ResolutionTime string    `json:"resolution_time,omitempty"`
	ResolutionDate string    `json:"resolution_date,omitempty"`

	// stock
	Ticker   string `json:"ticker,omitempty"`
	Exchange string `json:"exchange,omitempty"`

	// on-chain
	Chain           string `json:"chain,omitempty"`
	ContractAddress string `json:"contract_address,omitempty"`
	Address         string `json:"address,omitempty"`
	Metric          string `json:"metric,omitempty"`

	// sports
	Sport           string `json:"sport,omitempty"`
	TeamA           string `json:"team_a,omitempty"`
	TeamB           string `json:"team_b,omitempty"`
	Competition     string `json:"competition,omitempty"`
	EventDate       string `json:"event_date,omitempty"`
	OutcomeType     string `json:"outcome_type,omitempty"`
	TargetTeam      string `json:"target_team,omitempty"`
	ExcludeOvertime bool   `json:"exclude_overtime,omitempty"`

	// weather
	Location        string `json:"location,omitempty"`
	StationID       string `json:"station_id,omitempty"`
	Unit            string `json:"unit,omitempty"`
	MeasurementType string `json:"measurement_type,omitempty"`
	Date            string `json:"date,omitempty"`
	Source          string `json:"source,omitempty"`

	// economic
	Indicator    string `json:"indicator,omitempty"`
	SourceAgency string `json:"source_agency,omitempty"`
	ReleaseDate  string `json:"release_date,omitempty"`
}

// DeterministicSpec is the machine-readable extraction for a data-resolvable
// market.
type DeterministicSpec struct {
	MarketID        string       `json:"marketId"`
	StrategyType    StrategyType `json:"strategy_type"`
	Fields          SpecFields   `json:"parsed_spec"`
	ResolutionReady bool         `json:"resolution_ready"`
}

// ParseRejection records why a market could not be parsed into a spec.
type ParseRejection struct {
	MarketID string `json:"marketId"`
	Reason   string `json:"reason"`
}

// Error implements error so a rejection can travel through error paths and be
// matched with errors.Is(err, ErrParseRejected).
func (r *ParseRejection) Error() string {
	return "spec rejected: " + r.Reason
}

// Unwrap returns ErrParseRejected.
func (r *ParseRejection) Unwrap() error { return ErrParseRejected }

// ParseResult is the outcome of parsing: exactly one of *DeterministicSpec or
// *ParseRejection.
type ParseResult interface {
	parseResult()
}

func (*DeterministicSpec) parseResult() {}
func (*ParseRejection) parseResult()    {}

// Rejection reasons.
const (
	RejectMisclassified       = "MISCLASSIFIED_NOT_DETERMINISTIC"
	RejectUnsupportedStrategy = "UNSUPPORTED_STRATEGY"
	RejectMissingFields       = "MISSING_REQUIRED_FIELDS"
	RejectInvalidComparator   = "INVALID_COMPARATOR"
)
