// Package resolution turns a fetched data point and a deterministic spec into
// a verdict. It performs no I/O and never consults an inference model.
package resolution

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// Confidence levels for deterministic verdicts.
const (
	// ConfidenceExact is reported when the fetched value matches the parsed
	// request exactly in time, unit and source.
	ConfidenceExact = 0.99
	// ConfidenceQuoteProxy applies when a USD market settles on a USDT pair.
	ConfidenceQuoteProxy = 0.95
	// ConfidenceNonExactDate applies when a stock close came from an earlier
	// trading day.
	ConfidenceNonExactDate = 0.80
	// ConfidenceWindowOpen is reported for UNDETERMINED verdicts that only
	// need time to pass; it lands in DEFER.
	ConfidenceWindowOpen = 0.70
)

// Agent compares fetched data against deterministic specs.
type Agent struct {
	logger *slog.Logger
}

// NewAgent creates an Agent.
func NewAgent(logger *slog.Logger) *Agent {
	return &Agent{logger: logger.With(slog.String("component", "resolution_agent"))}
}

// Resolve produces a verdict for market from fetch. Any doubt about the data
// yields UNDETERMINED rather than an inferred answer.
func (a *Agent) Resolve(market domain.Market, spec domain.DeterministicSpec, fetch domain.FetchResult) domain.Verdict {
	v := a.resolve(spec, fetch)
	if v.Outcome == domain.OutcomeUndetermined {
		v.CapConfidence(domain.UndeterminedCeiling)
	}
	v.Confidence = domain.ClampConfidence(v.Confidence)
	if v.Flags == nil {
		v.Flags = []string{}
	}
	a.logger.Info("deterministic verdict",
		slog.String("market_id", market.ID),
		slog.String("strategy", string(spec.StrategyType)),
		slog.String("outcome", string(v.Outcome)),
		slog.Float64("confidence", v.Confidence),
		slog.Any("flags", v.Flags),
	)
	return v
}

func (a *Agent) resolve(spec domain.DeterministicSpec, fetch domain.FetchResult) domain.Verdict {
	if !fetch.Success {
		v := undetermined(0, "Data fetch from %s failed: %s", fetch.Provider, fetch.Error)
		if fetch.Bool("unsupported_strategy", false) {
			v.AddFlag(domain.FlagUnsupportedStrategy)
		} else {
			v.AddFlag(domain.FlagFetchFailed)
		}
		return v
	}
	if fetch.Data == nil {
		v := undetermined(0, "Fetch from %s returned no data.", fetch.Provider)
		v.AddFlag(domain.FlagMissingValue)
		return v
	}

	switch spec.StrategyType {
	case domain.StrategySportsResult:
		return resolveSports(spec.Fields, fetch)
	case domain.StrategyCryptoSpot, domain.StrategyCryptoTWAP:
		return resolveCrypto(spec, fetch)
	case domain.StrategyStockClose:
		return resolveStock(spec.Fields, fetch)
	case domain.StrategyWeather:
		return resolveWeather(spec.Fields, fetch)
	case domain.StrategyEconomicData:
		return resolveEconomic(spec.Fields, fetch)
	case domain.StrategyOnchainQuery:
		return resolveOnchain(spec.Fields, fetch)
	default:
		v := undetermined(0, "No resolution rule for strategy %s.", spec.StrategyType)
		v.AddFlag(domain.FlagUnsupportedStrategy)
		return v
	}
}

func undetermined(confidence float64, format string, args ...any) domain.Verdict {
	return domain.Verdict{
		Outcome:    domain.OutcomeUndetermined,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf(format, args...),
		Flags:      []string{},
	}
}

func windowOpen(format string, args ...any) domain.Verdict {
	v := undetermined(ConfidenceWindowOpen, format, args...)
	v.AddFlag(domain.FlagWindowOpen)
	return v
}

// decimalValue reads key from fetch as an exact decimal.
func decimalValue(fetch domain.FetchResult, key string) (decimal.Decimal, bool) {
	if s, ok := fetch.Data[key].(string); ok {
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	f, ok := fetch.Float(key)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

// compareThreshold applies the parsed comparator to value and fills in the
// verdict outcome, reasoning and data summary.
func compareThreshold(fields domain.SpecFields, value decimal.Decimal, label string, confidence float64, v domain.Verdict) domain.Verdict {
	if !fields.Threshold.Set || !fields.Threshold.Numeric {
		out := undetermined(0, "Threshold %q is not numeric; cannot compare %s.", fields.Threshold.String(), label)
		out.Flags = append(v.Flags, out.Flags...)
		out.AddFlag(domain.FlagInvalidThreshold)
		return out
	}
	comp, ok := domain.ParseComparator(fields.Comparator)
	if !ok {
		out := undetermined(0, "Comparator %q is not recognised.", fields.Comparator)
		out.Flags = append(v.Flags, out.Flags...)
		out.AddFlag(domain.FlagInvalidThreshold)
		return out
	}
	threshold := fields.Threshold.Value
	met, _ := Compare(value, comp, threshold)

	v.Outcome = domain.OutcomeNo
	if met {
		v.Outcome = domain.OutcomeYes
	}
	v.Confidence = confidence
	v.DataSummary = &domain.DataSummary{
		FetchedValue:     value.String(),
		Threshold:        threshold.String(),
		Comparator:       string(comp),
		ComparisonResult: fmt.Sprintf("%s %s %s is %t", value.String(), comp, threshold.String(), met),
	}
	v.Reasoning = fmt.Sprintf("%s was %s; condition %s %s %s is %t.%s",
		label, value.String(), label, comp, threshold.String(), met, v.Reasoning)
	if v.Flags == nil {
		v.Flags = []string{}
	}
	return v
}

func resolveCrypto(spec domain.DeterministicSpec, fetch domain.FetchResult) domain.Verdict {
	fields := spec.Fields
	label := "price"
	if spec.StrategyType == domain.StrategyCryptoTWAP {
		label = "TWAP"
	}
	if sym := fetch.String("symbol"); sym != "" {
		label = sym + " " + label
	}
	if !fetch.Bool("window_closed", true) {
		return windowOpen("The resolution window for %s has not closed; live data is not final.", label)
	}
	price, ok := decimalValue(fetch, "price")
	if !ok {
		v := undetermined(0, "Fetch from %s carried no price.", fetch.Provider)
		v.AddFlag(domain.FlagMissingValue)
		return v
	}

	confidence := ConfidenceExact
	v := domain.Verdict{Flags: []string{}}
	requested := strings.ToUpper(fetch.String("requested_quote"))
	quote := strings.ToUpper(fetch.String("quote_currency"))
	if unit := canonicalUnit(fields.Unit); unit != "" && requested == "" {
		requested = unit
	}
	switch {
	case requested == "" || quote == "" || requested == quote:
	case requested == "USD" && quote == "USDT":
		v.AddFlag(domain.FlagQuoteCurrencyProxy)
		v.Reasoning = " USDT quote used as a proxy for USD."
		confidence = ConfidenceQuoteProxy
	default:
		out := undetermined(0, "Market is quoted in %s but data is quoted in %s.", requested, quote)
		out.AddFlag(domain.FlagUnitMismatch)
		return out
	}
	return compareThreshold(fields, price, label, confidence, v)
}

func resolveStock(fields domain.SpecFields, fetch domain.FetchResult) domain.Verdict {
	ticker := fetch.String("ticker")
	if fetch.Bool("requested_date_in_future", false) {
		return windowOpen("The close for %s on %s is not final yet.", ticker, fetch.String("requested_date"))
	}
	price, ok := decimalValue(fetch, "close")
	if !ok {
		price, ok = decimalValue(fetch, "price")
	}
	if !ok {
		v := undetermined(0, "No close price for %s.", ticker)
		v.AddFlag(domain.FlagMissingValue)
		return v
	}
	confidence := ConfidenceExact
	v := domain.Verdict{Flags: []string{}}
	if !fetch.Bool("exact_date_match", true) {
		v.AddFlag(domain.FlagNonExactDate)
		v.Reasoning = fmt.Sprintf(" No trading on %s; used the %s close.", fetch.String("requested_date"), fetch.String("date"))
		confidence = ConfidenceNonExactDate
	}
	return compareThreshold(fields, price, ticker+" close", confidence, v)
}

func resolveWeather(fields domain.SpecFields, fetch domain.FetchResult) domain.Verdict {
	label := fmt.Sprintf("%s %s", fetch.String("city"), fetch.String("measurement_type"))
	if fetch.Bool("is_forecast", false) {
		return windowOpen("Only forecast data exists for %s on %s.", label, fetch.String("date"))
	}
	value, ok := decimalValue(fetch, "value")
	if !ok {
		v := undetermined(0, "No observed value for %s.", label)
		v.AddFlag(domain.FlagMissingValue)
		return v
	}
	v := domain.Verdict{Flags: []string{}}
	got, want := canonicalUnit(fetch.String("unit")), canonicalUnit(fields.Unit)
	if want != "" && got != "" && got != want {
		converted, ok := convertUnit(value, got, want)
		if !ok {
			out := undetermined(0, "Data unit %s cannot be compared with market unit %s.", got, want)
			out.AddFlag(domain.FlagUnitMismatch)
			return out
		}
		v.AddFlag(domain.FlagUnitConverted)
		v.Reasoning = fmt.Sprintf(" Converted %s %s to %s %s.", value.String(), got, converted.StringFixed(2), want)
		value = converted
	}
	return compareThreshold(fields, value, label, ConfidenceExact, v)
}

func resolveEconomic(fields domain.SpecFields, fetch domain.FetchResult) domain.Verdict {
	label := fetch.String("series_id")
	if fetch.Bool("release_pending", false) {
		return windowOpen("The %s release due %s is not out yet.", label, fetch.String("observation_end"))
	}
	value, ok := decimalValue(fetch, "value")
	if !ok {
		v := undetermined(0, "No observation for %s.", label)
		v.AddFlag(domain.FlagMissingValue)
		return v
	}
	v := domain.Verdict{Flags: []string{}}
	v.Reasoning = fmt.Sprintf(" Observation dated %s.", fetch.String("observation_date"))
	return compareThreshold(fields, value, label, ConfidenceExact, v)
}

func resolveOnchain(fields domain.SpecFields, fetch domain.FetchResult) domain.Verdict {
	if fetch.Bool("connectivity_check", false) {
		v := undetermined(0, "Metric %q on %s cannot be read generically; only a connectivity check was made.",
			fields.Metric, fetch.String("chain"))
		v.AddFlag(domain.FlagMetricUnsupported)
		return v
	}
	key, label := "balance", "balance"
	if canonicalUnit(fields.Unit) == "WEI" {
		key, label = "balance_wei", "balance (wei)"
	}
	value, ok := decimalValue(fetch, key)
	if !ok {
		v := undetermined(0, "No %s returned for %s.", label, fetch.String("address"))
		v.AddFlag(domain.FlagMissingValue)
		return v
	}
	return compareThreshold(fields, value, fetch.String("address")+" "+label, ConfidenceExact, domain.Verdict{Flags: []string{}})
}
