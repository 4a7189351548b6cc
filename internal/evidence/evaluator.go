package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/inference"
)

// Confidence caps enforced after inference.
const (
	SingleSourceCap    = 0.79
	UnconfirmedCap     = 0.84
	minMainstreamConfs = 2
)

// Evaluator scores a corpus through the inference service and enforces the
// evidence policy on the result.
type Evaluator struct {
	llm    inference.Client
	now    func() time.Time
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator. now may be nil.
func NewEvaluator(llm inference.Client, now func() time.Time, logger *slog.Logger) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{llm: llm, now: now, logger: logger.With(slog.String("component", "evidence_evaluator"))}
}

type evalReply struct {
	Outcome              string                    `json:"outcome"`
	Confidence           float64                   `json:"confidence"`
	Reasoning            string                    `json:"reasoning"`
	SourceAnalysis       []domain.SourceAssessment `json:"source_analysis"`
	SupportingSources    []string                  `json:"supporting_sources"`
	ContradictingSources []string                  `json:"contradicting_sources"`
	Flags                []string                  `json:"flags"`
	TemporalNotes        string                    `json:"temporal_notes"`
}

type evalDoc struct {
	Market   domain.Market         `json:"market"`
	Evidence domain.EvidenceCorpus `json:"evidence"`
	Now      string                `json:"current_time"`
}

// Evaluate returns a verdict for m from corpus. An empty corpus is
// UNDETERMINED without an inference call. The only error is a wrapped
// domain.ErrInferenceUnavailable.
func (e *Evaluator) Evaluate(ctx context.Context, m domain.Market, corpus domain.EvidenceCorpus) (domain.Verdict, error) {
	now := e.now().UTC()
	if len(corpus.Sources) == 0 {
		v := domain.Verdict{
			Outcome:    domain.OutcomeUndetermined,
			Confidence: 0,
			Reasoning:  "No evidence sources were found for this market; absence of coverage is not evidence either way.",
			Flags:      []string{domain.FlagNoEvidence},
		}
		v.Summary = summarise(v, 0)
		return v, nil
	}

	r, err := inference.Ask[evalReply](ctx, e.llm, inference.EvaluatorPrompt, evalDoc{
		Market: m, Evidence: corpus, Now: now.Format(time.RFC3339),
	})
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("evidence: evaluate %s: %w", m.ID, err)
	}

	v := domain.Verdict{
		Outcome:              domain.ParseOutcome(strings.ToUpper(strings.TrimSpace(r.Outcome))),
		Confidence:           domain.ClampConfidence(r.Confidence),
		Reasoning:            strings.TrimSpace(r.Reasoning),
		SourceAnalysis:       attachSourceTypes(r.SourceAnalysis, corpus),
		SupportingSources:    citedSources(r.SupportingSources, corpus),
		ContradictingSources: citedSources(r.ContradictingSources, corpus),
		Flags:                []string{},
		TemporalNotes:        strings.TrimSpace(r.TemporalNotes),
	}
	for _, f := range r.Flags {
		if f = strings.TrimSpace(f); f != "" {
			v.AddFlag(f)
		}
	}

	ApplyPolicy(&v, m, now)
	if v.Reasoning == "" {
		v.Reasoning = fmt.Sprintf("Evidence evaluated as %s.", v.Outcome)
	}
	v.Summary = summarise(v, len(corpus.Sources))

	e.logger.InfoContext(ctx, "evidence evaluated",
		slog.String("market_id", m.ID),
		slog.String("outcome", string(v.Outcome)),
		slog.Float64("confidence", v.Confidence),
		slog.Int("sources", len(corpus.Sources)),
		slog.Any("flags", v.Flags),
	)
	return v, nil
}

// attachSourceTypes binds each assessment to a corpus source, matching by
// URL first and title second, and takes the source type from that source.
// Assessments naming no gathered source are dropped, and a source keeps only
// its first assessment.
func attachSourceTypes(in []domain.SourceAssessment, corpus domain.EvidenceCorpus) []domain.SourceAssessment {
	byURL := make(map[string]domain.EvidenceSource, len(corpus.Sources))
	byTitle := make(map[string]domain.EvidenceSource, len(corpus.Sources))
	for _, s := range corpus.Sources {
		byURL[strings.TrimSpace(s.URL)] = s
		byTitle[strings.ToLower(strings.TrimSpace(s.Title))] = s
	}
	out := make([]domain.SourceAssessment, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, a := range in {
		src, ok := byURL[strings.TrimSpace(a.SourceURL)]
		if !ok || strings.TrimSpace(a.SourceURL) == "" {
			src, ok = byTitle[strings.ToLower(strings.TrimSpace(a.SourceTitle))]
		}
		if !ok || seen[src.URL] {
			continue
		}
		seen[src.URL] = true

		a.SourceURL = src.URL
		a.SourceType = src.SourceType
		if a.SourceType == "" {
			a.SourceType = domain.SourceUnknown
		}
		a.Credibility = domain.ClampConfidence(a.Credibility)
		a.Supports = domain.Stance(strings.ToUpper(strings.TrimSpace(string(a.Supports))))
		out = append(out, a)
	}
	return out
}

// citedSources keeps the names that refer to a corpus source by title or
// URL, once each.
func citedSources(names []string, corpus domain.EvidenceCorpus) []string {
	known := make(map[string]string, 2*len(corpus.Sources))
	for _, s := range corpus.Sources {
		known[strings.ToLower(strings.TrimSpace(s.Title))] = s.URL
		known[strings.TrimSpace(s.URL)] = s.URL
	}
	out := []string{}
	seen := map[string]bool{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		url, ok := known[n]
		if !ok {
			url, ok = known[strings.ToLower(n)]
		}
		if !ok || n == "" || seen[url] {
			continue
		}
		seen[url] = true
		out = append(out, n)
	}
	return out
}

// ApplyPolicy enforces the evidence rules on v in order: official override,
// corroboration caps, the deadline and absence rules for NO, and the
// UNDETERMINED ceiling.
func ApplyPolicy(v *domain.Verdict, m domain.Market, now time.Time) {
	if stance, ok := officialConsensus(v.SourceAnalysis); ok && domain.Outcome(stance) != v.Outcome {
		prev := v.Outcome
		v.Outcome = domain.Outcome(stance)
		v.Confidence = officialCredibility(v.SourceAnalysis, stance)
		v.AddFlag(domain.FlagOfficialOverride)
		v.Reasoning = strings.TrimSpace(fmt.Sprintf("%s Official sources state %s, overriding the %s reading of other reports.",
			v.Reasoning, stance, prev))
	}

	if len(v.SourceAnalysis) > 0 {
		v.SupportingSources, v.ContradictingSources = partition(v.SourceAnalysis, v.Outcome)
	}

	if v.Outcome == domain.OutcomeYes || v.Outcome == domain.OutcomeNo {
		supporters := supportersOf(v.SourceAnalysis, v.Outcome)
		count := len(supporters)
		if len(v.SourceAnalysis) == 0 {
			count = len(v.SupportingSources)
		}
		official, wire, mainstream := 0, 0, 0
		for _, s := range supporters {
			switch s.SourceType {
			case domain.SourceOfficial:
				official++
			case domain.SourceWire:
				wire++
			case domain.SourceMainstream:
				mainstream++
			}
		}

		if v.Outcome == domain.OutcomeNo {
			deadline, ok := m.DeadlineTime()
			switch {
			case count == 0:
				setUndetermined(v, domain.FlagAbsenceNotEvidence,
					"No source affirmatively reports NO; absence of confirmation is not evidence of NO.")
			case !ok || now.Before(deadline):
				setUndetermined(v, domain.FlagDeadlineNotPassed,
					"The deadline has not passed, so the event may still occur.")
			}
		}

		if v.Outcome != domain.OutcomeUndetermined {
			switch {
			case count == 1 && official == 0:
				if v.Confidence > SingleSourceCap {
					v.CapConfidence(SingleSourceCap)
					v.AddFlag(domain.FlagSingleSourceCap)
				}
			case official == 0 && wire == 0 && mainstream < minMainstreamConfs:
				if v.Confidence > UnconfirmedCap {
					v.CapConfidence(UnconfirmedCap)
					v.AddFlag(domain.FlagNoOfficialConfirmation)
				}
			}
		}
	}

	if v.Outcome == domain.OutcomeUndetermined {
		v.CapConfidence(domain.UndeterminedCeiling)
	}
}

func setUndetermined(v *domain.Verdict, flag, why string) {
	v.Outcome = domain.OutcomeUndetermined
	v.AddFlag(flag)
	v.Reasoning = strings.TrimSpace(v.Reasoning + " " + why)
	if len(v.SourceAnalysis) > 0 {
		v.SupportingSources, v.ContradictingSources = partition(v.SourceAnalysis, v.Outcome)
	}
}

// officialConsensus returns the stance shared by every non-neutral,
// relevant official source.
func officialConsensus(analysis []domain.SourceAssessment) (domain.Stance, bool) {
	var stance domain.Stance
	for _, a := range analysis {
		if a.SourceType != domain.SourceOfficial || a.Relevance == domain.RelevanceTangential {
			continue
		}
		if a.Supports != domain.StanceYes && a.Supports != domain.StanceNo {
			continue
		}
		if stance != "" && stance != a.Supports {
			return "", false
		}
		stance = a.Supports
	}
	return stance, stance != ""
}

func officialCredibility(analysis []domain.SourceAssessment, stance domain.Stance) float64 {
	var sum float64
	var n int
	for _, a := range analysis {
		if a.SourceType == domain.SourceOfficial && a.Supports == stance {
			sum += a.Credibility
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return domain.ClampConfidence(sum / float64(n))
}

func supportersOf(analysis []domain.SourceAssessment, outcome domain.Outcome) []domain.SourceAssessment {
	var out []domain.SourceAssessment
	for _, a := range analysis {
		if string(a.Supports) == string(outcome) && a.Relevance != domain.RelevanceTangential {
			out = append(out, a)
		}
	}
	return out
}

// partition splits assessment titles into those agreeing with outcome and
// those pointing the other way. For UNDETERMINED, YES sources are listed as
// supporting and NO sources as contradicting.
func partition(analysis []domain.SourceAssessment, outcome domain.Outcome) (supporting, contradicting []string) {
	want := domain.StanceYes
	if outcome == domain.OutcomeNo {
		want = domain.StanceNo
	}
	supporting, contradicting = []string{}, []string{}
	for _, a := range analysis {
		switch a.Supports {
		case want:
			supporting = append(supporting, a.SourceTitle)
		case domain.StanceYes, domain.StanceNo:
			contradicting = append(contradicting, a.SourceTitle)
		}
	}
	return supporting, contradicting
}

// summarise renders the evidence-trail summary line.
func summarise(v domain.Verdict, evaluated int) string {
	s := fmt.Sprintf("%d sources evaluated. %d supporting, %d contradicting.",
		evaluated, len(v.SupportingSources), len(v.ContradictingSources))
	if v.TemporalNotes != "" {
		s += " " + v.TemporalNotes
	}
	return s
}
