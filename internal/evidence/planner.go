// Package evidence implements the event-resolvable track: planning news
// searches, gathering a deduplicated corpus and evaluating it into a verdict.
package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/inference"
)

// Query count bounds for a plan.
const (
	MinQueries = 3
	MaxQueries = 5
)

// Planner builds evidence plans through the inference service.
type Planner struct {
	llm    inference.Client
	logger *slog.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(llm inference.Client, logger *slog.Logger) *Planner {
	return &Planner{llm: llm, logger: logger.With(slog.String("component", "evidence_planner"))}
}

type planReply struct {
	MarketID            string   `json:"marketId"`
	SearchQueries       []string `json:"search_queries"`
	PrioritySourceTypes []string `json:"priority_source_types"`
	TimeWindow          struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"time_window"`
	ConfirmationSignals struct {
		YesSignals []string `json:"yes_signals"`
		NoSignals  []string `json:"no_signals"`
	} `json:"confirmation_signals"`
	PrimaryAuthority string `json:"primary_authority"`
}

// Plan returns the EvidencePlan for m. The only error is a wrapped
// domain.ErrInferenceUnavailable.
func (p *Planner) Plan(ctx context.Context, m domain.Market) (domain.EvidencePlan, error) {
	r, err := inference.Ask[planReply](ctx, p.llm, inference.PlannerPrompt, m)
	if err != nil {
		return domain.EvidencePlan{}, fmt.Errorf("evidence: plan %s: %w", m.ID, err)
	}
	plan := normalisePlan(m, r)
	p.logger.InfoContext(ctx, "evidence plan built",
		slog.String("market_id", m.ID),
		slog.Any("queries", plan.SearchQueries),
		slog.String("from", plan.TimeWindow.From),
		slog.String("to", plan.TimeWindow.To),
	)
	return plan, nil
}

func normalisePlan(m domain.Market, r planReply) domain.EvidencePlan {
	queries := make([]string, 0, MaxQueries)
	seen := make(map[string]struct{})
	add := func(q string) {
		q = strings.Join(strings.Fields(q), " ")
		key := strings.ToLower(q)
		if q == "" || len(queries) == MaxQueries {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		queries = append(queries, q)
	}
	for _, q := range r.SearchQueries {
		add(q)
	}
	if len(queries) < MinQueries {
		question := strings.TrimSuffix(strings.TrimSpace(m.Question), "?")
		for _, q := range []string{question, question + " official announcement", question + " latest news"} {
			if len(queries) >= MinQueries {
				break
			}
			add(q)
		}
	}

	types := make([]domain.SourceType, 0, len(r.PrioritySourceTypes))
	for _, t := range r.PrioritySourceTypes {
		st := domain.SourceType(strings.ToLower(strings.TrimSpace(t)))
		if st.Tier() > 0 {
			types = append(types, st)
		}
	}
	if len(types) == 0 {
		types = []domain.SourceType{domain.SourceOfficial, domain.SourceWire, domain.SourceMainstream}
	}

	tw := domain.TimeWindow{From: strings.TrimSpace(r.TimeWindow.From), To: strings.TrimSpace(r.TimeWindow.To)}
	if tw.From == "" {
		tw.From = fmt.Sprintf("last_%d_days", DefaultLookbackDays)
	}
	if tw.To == "" {
		tw.To = "now"
	}

	return domain.EvidencePlan{
		MarketID:            m.ID,
		SearchQueries:       queries,
		PrioritySourceTypes: types,
		TimeWindow:          tw,
		ConfirmationSignals: domain.ConfirmationSignals{
			YesSignals: nonNil(r.ConfirmationSignals.YesSignals),
			NoSignals:  nonNil(r.ConfirmationSignals.NoSignals),
		},
		PrimaryAuthority: strings.TrimSpace(r.PrimaryAuthority),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
