// Package parser turns a data-resolvable market into a DeterministicSpec, or
// rejects it.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/inference"
)

// Parser extracts deterministic specs through the inference service and
// validates them locally.
type Parser struct {
	llm    inference.Client
	logger *slog.Logger
}

// New creates a Parser.
func New(llm inference.Client, logger *slog.Logger) *Parser {
	return &Parser{
		llm:    llm,
		logger: logger.With(slog.String("component", "parser")),
	}
}

type reply struct {
	MarketID        string          `json:"marketId"`
	StrategyType    string          `json:"strategy_type"`
	ParsedSpec      json.RawMessage `json:"parsed_spec"`
	ResolutionReady *bool           `json:"resolution_ready"`
	Classification  string          `json:"classification"`
	Reason          string          `json:"reason"`
}

// Parse returns either a *domain.DeterministicSpec or a *domain.ParseRejection.
// The only error is a wrapped domain.ErrInferenceUnavailable.
func (p *Parser) Parse(ctx context.Context, m domain.Market) (domain.ParseResult, error) {
	r, err := inference.Ask[reply](ctx, p.llm, inference.ParserPrompt, m)
	if err != nil {
		return nil, fmt.Errorf("parser: parse %s: %w", m.ID, err)
	}

	result := build(m.ID, r)
	switch v := result.(type) {
	case *domain.DeterministicSpec:
		p.logger.InfoContext(ctx, "spec parsed",
			slog.String("market_id", m.ID),
			slog.String("strategy", string(v.StrategyType)),
		)
	case *domain.ParseRejection:
		p.logger.InfoContext(ctx, "spec rejected",
			slog.String("market_id", m.ID),
			slog.String("reason", v.Reason),
		)
	}
	return result, nil
}

func build(marketID string, r reply) domain.ParseResult {
	reject := func(reason string) *domain.ParseRejection {
		return &domain.ParseRejection{MarketID: marketID, Reason: reason}
	}

	if strings.EqualFold(r.Classification, "REJECTED") || (r.StrategyType == "" && r.Reason != "") {
		reason := strings.TrimSpace(r.Reason)
		if reason == "" {
			reason = domain.RejectMisclassified
		}
		return reject(reason)
	}
	if r.ResolutionReady != nil && !*r.ResolutionReady {
		reason := strings.TrimSpace(r.Reason)
		if reason == "" {
			reason = "RESOLUTION_NOT_READY"
		}
		return reject(reason)
	}

	strategy := domain.StrategyType(strings.ToUpper(strings.TrimSpace(r.StrategyType)))
	if !strategy.Valid() {
		return reject(fmt.Sprintf("%s: %q", domain.RejectUnsupportedStrategy, r.StrategyType))
	}

	var fields domain.SpecFields
	raw := bytes.TrimSpace(r.ParsedSpec)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return reject(domain.RejectMissingFields + ": parsed_spec")
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return reject(fmt.Sprintf("INVALID_SPEC: %v", err))
	}
	trimFields(&fields)

	if fields.Comparator != "" {
		cmp, ok := domain.ParseComparator(fields.Comparator)
		if !ok {
			return reject(fmt.Sprintf("%s: %q", domain.RejectInvalidComparator, fields.Comparator))
		}
		fields.Comparator = string(cmp)
	}

	if missing := missingFields(strategy, fields); len(missing) > 0 {
		return reject(domain.RejectMissingFields + ": " + strings.Join(missing, ", "))
	}

	return &domain.DeterministicSpec{
		MarketID:        marketID,
		StrategyType:    strategy,
		Fields:          fields,
		ResolutionReady: true,
	}
}

func trimFields(f *domain.SpecFields) {
	for _, s := range []*string{
		&f.Asset, &f.Pair, &f.AggregationMethod, &f.Window, &f.Comparator,
		&f.ResolutionTime, &f.ResolutionDate, &f.Ticker, &f.Exchange, &f.Chain,
		&f.ContractAddress, &f.Address, &f.Metric, &f.Sport, &f.TeamA, &f.TeamB,
		&f.Competition, &f.EventDate, &f.OutcomeType, &f.TargetTeam, &f.Location,
		&f.StationID, &f.Unit, &f.MeasurementType, &f.Date, &f.Source,
		&f.Indicator, &f.SourceAgency, &f.ReleaseDate,
	} {
		*s = strings.TrimSpace(*s)
	}
	f.OutcomeType = strings.ToLower(f.OutcomeType)
	f.MeasurementType = strings.ToLower(f.MeasurementType)
}

// missingFields lists the extraction fields a strategy needs but the parsed
// fields lack.
func missingFields(s domain.StrategyType, f domain.SpecFields) []string {
	var missing []string
	need := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	comparison := func() {
		need("comparator", f.Comparator != "")
		need("threshold", f.Threshold.Set)
	}

	switch s {
	case domain.StrategyCryptoSpot:
		need("asset|pair", f.Asset != "" || f.Pair != "")
		comparison()
	case domain.StrategyCryptoTWAP:
		need("asset|pair", f.Asset != "" || f.Pair != "")
		need("window", f.Window != "")
		comparison()
	case domain.StrategyStockClose:
		need("ticker", f.Ticker != "")
		need("resolution_date", f.ResolutionDate != "")
		comparison()
	case domain.StrategyOnchainQuery:
		need("chain", f.Chain != "")
		need("metric", f.Metric != "")
		comparison()
	case domain.StrategySportsResult:
		need("team_a", f.TeamA != "")
		need("team_b", f.TeamB != "")
		need("event_date", f.EventDate != "")
		need("sport|competition", f.Sport != "" || f.Competition != "")
		need("outcome_type", f.OutcomeType != "")
		switch f.OutcomeType {
		case "win", "loss":
			need("target_team", f.TargetTeam != "")
		case "score_over", "score_under":
			need("threshold", f.Threshold.Set)
		}
	case domain.StrategyWeather:
		need("location", f.Location != "")
		need("date", f.Date != "")
		need("unit", f.Unit != "")
		need("measurement_type", f.MeasurementType != "" || f.Metric != "")
		comparison()
	case domain.StrategyEconomicData:
		need("indicator", f.Indicator != "")
		need("resolution_date|release_date", f.ResolutionDate != "" || f.ReleaseDate != "")
		comparison()
	}
	return missing
}
