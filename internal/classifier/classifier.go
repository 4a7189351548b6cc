// Package classifier is the pipeline's entry gate. It decides which
// resolution track a market takes and enforces the intake rules that do not
// depend on model judgment.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/inference"
)

// Classifier classifies markets through the inference service.
type Classifier struct {
	llm    inference.Client
	logger *slog.Logger
}

// New creates a Classifier.
func New(llm inference.Client, logger *slog.Logger) *Classifier {
	return &Classifier{
		llm:    llm,
		logger: logger.With(slog.String("component", "classifier")),
	}
}

// reply is the inference output shape.
type reply struct {
	MarketID              string   `json:"marketId"`
	Classification        string   `json:"classification"`
	Category              string   `json:"category"`
	Confidence            float64  `json:"confidence"`
	Reasoning             string   `json:"reasoning"`
	ResolutionApproach    string   `json:"resolution_approach"`
	DataSourceHint        string   `json:"data_source_hint"`
	FallbackCategory      *string  `json:"fallback_category"`
	Flags                 []string `json:"flags"`
	RequiresClarification bool     `json:"requires_clarification"`
	ClarificationNeeded   *string  `json:"clarification_needed"`
}

// Classify returns the Classification for m. Markets without a question or
// criteria are MALFORMED without an inference call. The only error is a
// wrapped domain.ErrInferenceUnavailable.
func (c *Classifier) Classify(ctx context.Context, m domain.Market) (domain.Classification, error) {
	if strings.TrimSpace(m.Question) == "" || strings.TrimSpace(m.ResolutionCriteria) == "" {
		missing := "question"
		if strings.TrimSpace(m.Question) != "" {
			missing = "resolution_criteria"
		}
		return domain.Classification{
			MarketID:   m.ID,
			Category:   domain.CategoryMalformed,
			Confidence: 1.0,
			Reasoning:  fmt.Sprintf("Market has no %s and cannot be resolved.", missing),
			Flags:      []string{},
		}, nil
	}

	r, err := inference.Ask[reply](ctx, c.llm, inference.ClassifierPrompt, m)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("classifier: classify %s: %w", m.ID, err)
	}

	cl := normalise(m, r)
	c.logger.InfoContext(ctx, "market classified",
		slog.String("market_id", m.ID),
		slog.String("category", string(cl.Category)),
		slog.Float64("confidence", cl.Confidence),
		slog.Any("flags", cl.Flags),
	)
	return cl, nil
}

// normalise applies the intake rules to a raw inference reply.
func normalise(m domain.Market, r reply) domain.Classification {
	label := r.Classification
	if label == "" {
		label = r.Category
	}
	category, known := domain.ParseCategory(label)

	cl := domain.Classification{
		MarketID:              m.ID,
		Category:              category,
		Confidence:            domain.ClampConfidence(r.Confidence),
		Reasoning:             strings.TrimSpace(r.Reasoning),
		ResolutionApproach:    r.ResolutionApproach,
		DataSourceHint:        r.DataSourceHint,
		Flags:                 []string{},
		RequiresClarification: r.RequiresClarification,
	}
	for _, f := range r.Flags {
		if f = strings.TrimSpace(f); f != "" {
			cl.AddFlag(f)
		}
	}
	if r.FallbackCategory != nil {
		if fb, ok := domain.ParseCategory(*r.FallbackCategory); ok {
			cl.FallbackCategory = fb
		}
	}
	if r.ClarificationNeeded != nil {
		cl.ClarificationNeeded = *r.ClarificationNeeded
	}

	if !known {
		cl.AddFlag(domain.FlagUnknownCategory)
		if cl.Reasoning == "" {
			cl.Reasoning = fmt.Sprintf("Classifier returned unknown category %q.", label)
		}
	}

	if !m.HasDeadline() && cl.Category.Resolvable() {
		cl.Category = domain.CategorySubjective
		cl.AddFlag(domain.FlagMissingDeadline)
		cl.Reasoning = strings.TrimSpace(cl.Reasoning + " Market has no deadline, so it cannot be settled objectively.")
	}

	if cl.Confidence < domain.LowConfidenceThreshold {
		cl.AddFlag(domain.FlagLowConfidenceClassification)
		cl.RequiresClarification = true
	}

	if cl.Reasoning == "" {
		cl.Reasoning = fmt.Sprintf("Classified as %s.", cl.Category)
	}
	return cl
}
