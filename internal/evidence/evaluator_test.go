package evidence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/inference"
	"github.com/alanyoungcy/polyoracle/internal/inference/inferencetest"
)

func corpusOf(sources ...domain.EvidenceSource) domain.EvidenceCorpus {
	return domain.EvidenceCorpus{QueriesUsed: []string{"q"}, Sources: sources, GatheredAt: now}
}

var (
	fedSource     = domain.EvidenceSource{Title: "FOMC statement", URL: "https://www.federalreserve.gov/s", SourceType: domain.SourceOfficial}
	reutersSource = domain.EvidenceSource{Title: "Fed cuts rates", URL: "https://reuters.com/a", SourceType: domain.SourceWire}
	blogSource    = domain.EvidenceSource{Title: "Fed will hold", URL: "https://blog.example/b", SourceType: domain.SourceUnknown}
	cnnSource     = domain.EvidenceSource{Title: "Fed holds steady", URL: "https://cnn.com/c", SourceType: domain.SourceMainstream}
)

func assess(title, url string, supports domain.Stance, cred float64) domain.SourceAssessment {
	return domain.SourceAssessment{SourceTitle: title, SourceURL: url, Credibility: cred,
		Relevance: domain.RelevanceDirect, Claim: "claim", Supports: supports}
}

func evalReplyJSON(t *testing.T, outcome string, confidence float64, analysis ...domain.SourceAssessment) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"outcome": outcome, "confidence": confidence, "reasoning": "model reasoning",
		"source_analysis": analysis, "flags": []string{}, "temporal_notes": "Reports dated March 18.",
	})
	require.NoError(t, err)
	return string(b)
}

func evaluator(llm inference.Client, at time.Time) *Evaluator {
	return NewEvaluator(llm, func() time.Time { return at }, discard())
}

func TestEvaluateEmptyCorpusSkipsInference(t *testing.T) {
	llm := inferencetest.New()
	v, err := evaluator(llm, now).Evaluate(context.Background(), fedMarket(), corpusOf())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUndetermined, v.Outcome)
	assert.True(t, v.HasFlag(domain.FlagNoEvidence))
	assert.Zero(t, llm.CallsFor(inference.EvaluatorPrompt))
	assert.Equal(t, "0 sources evaluated. 0 supporting, 0 contradicting.", v.Summary)
}

func TestEvaluateSingleSourceCap(t *testing.T) {
	after := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	llm := inferencetest.New().Reply(inference.EvaluatorPrompt,
		evalReplyJSON(t, "YES", 0.95, assess(reutersSource.Title, reutersSource.URL, domain.StanceYes, 0.95)))

	v, err := evaluator(llm, after).Evaluate(context.Background(), fedMarket(), corpusOf(reutersSource))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, v.Outcome)
	assert.InDelta(t, SingleSourceCap, v.Confidence, 1e-9)
	assert.True(t, v.HasFlag(domain.FlagSingleSourceCap))
	assert.Equal(t, "1 sources evaluated. 1 supporting, 0 contradicting. Reports dated March 18.", v.Summary)
}

func TestEvaluateSingleOfficialSourceNotCapped(t *testing.T) {
	after := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	llm := inferencetest.New().Reply(inference.EvaluatorPrompt,
		evalReplyJSON(t, "YES", 0.97, assess(fedSource.Title, fedSource.URL, domain.StanceYes, 0.99)))

	v, err := evaluator(llm, after).Evaluate(context.Background(), fedMarket(), corpusOf(fedSource))
	require.NoError(t, err)
	assert.InDelta(t, 0.97, v.Confidence, 1e-9)
	assert.Empty(t, v.Flags)
}

func TestEvaluateOfficialOverride(t *testing.T) {
	after := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	llm := inferencetest.New().Reply(inference.EvaluatorPrompt, evalReplyJSON(t, "NO", 0.75,
		assess(cnnSource.Title, cnnSource.URL, domain.StanceNo, 0.7),
		assess(blogSource.Title, "", domain.StanceNo, 0.3),
		assess(fedSource.Title, fedSource.URL, domain.StanceYes, 0.98),
	))

	v, err := evaluator(llm, after).Evaluate(context.Background(), fedMarket(), corpusOf(cnnSource, blogSource, fedSource))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, v.Outcome)
	assert.True(t, v.HasFlag(domain.FlagOfficialOverride))
	assert.InDelta(t, 0.98, v.Confidence, 1e-9)
	assert.Equal(t, []string{fedSource.Title}, v.SupportingSources)
	assert.Equal(t, []string{cnnSource.Title, blogSource.Title}, v.ContradictingSources)
	require.Len(t, v.SourceAnalysis, 3)
	assert.Equal(t, domain.SourceUnknown, v.SourceAnalysis[1].SourceType)
	assert.Equal(t, blogSource.URL, v.SourceAnalysis[1].SourceURL)
}

func TestEvaluateNoBeforeDeadlineIsUndetermined(t *testing.T) {
	before := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	llm := inferencetest.New().Reply(inference.EvaluatorPrompt, evalReplyJSON(t, "NO", 0.8,
		assess(cnnSource.Title, cnnSource.URL, domain.StanceNo, 0.7),
		assess(reutersSource.Title, reutersSource.URL, domain.StanceNo, 0.8),
	))

	v, err := evaluator(llm, before).Evaluate(context.Background(), fedMarket(), corpusOf(cnnSource, reutersSource))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUndetermined, v.Outcome)
	assert.True(t, v.HasFlag(domain.FlagDeadlineNotPassed))
	assert.LessOrEqual(t, v.Confidence, domain.UndeterminedCeiling)
}

func TestEvaluateOfficialNoBeforeDeadlineIsUndetermined(t *testing.T) {
	before := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)
	llm := inferencetest.New().Reply(inference.EvaluatorPrompt, evalReplyJSON(t, "NO", 0.92,
		assess(fedSource.Title, fedSource.URL, domain.StanceNo, 0.92),
	))

	v, err := evaluator(llm, before).Evaluate(context.Background(), fedMarket(), corpusOf(fedSource))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUndetermined, v.Outcome)
	assert.True(t, v.HasFlag(domain.FlagDeadlineNotPassed))
	assert.NotEqual(t, domain.ActionSettle, domain.DecideSettlement(domain.CategoryEvent, v.Confidence))
}

func TestEvaluateIgnoresAssessmentsOutsideCorpus(t *testing.T) {
	after := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	fake := domain.SourceAssessment{SourceTitle: "Press release", SourceURL: "https://not-in-corpus.example/x",
		SourceType: domain.SourceOfficial, Credibility: 0.99, Relevance: domain.RelevanceDirect, Supports: domain.StanceYes}
	llm := inferencetest.New().Reply(inference.EvaluatorPrompt, evalReplyJSON(t, "YES", 0.95,
		assess(blogSource.Title, blogSource.URL, domain.StanceYes, 0.4),
		fake,
		assess(blogSource.Title, blogSource.URL, domain.StanceYes, 0.4),
	))

	v, err := evaluator(llm, after).Evaluate(context.Background(), fedMarket(), corpusOf(blogSource))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, v.Outcome)
	assert.LessOrEqual(t, v.Confidence, SingleSourceCap)
	assert.True(t, v.HasFlag(domain.FlagSingleSourceCap))
	assert.False(t, v.HasFlag(domain.FlagOfficialOverride))
	require.Len(t, v.SourceAnalysis, 1)
	assert.Equal(t, domain.SourceUnknown, v.SourceAnalysis[0].SourceType)
	assert.Equal(t, []string{blogSource.Title}, v.SupportingSources)
	assert.NotEqual(t, domain.ActionSettle, domain.DecideSettlement(domain.CategoryEvent, v.Confidence))
}

func TestEvaluateModelSourceTypeIsIgnored(t *testing.T) {
	after := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	relabelled := assess(blogSource.Title, blogSource.URL, domain.StanceYes, 0.9)
	relabelled.SourceType = domain.SourceOfficial
	llm := inferencetest.New().Reply(inference.EvaluatorPrompt, evalReplyJSON(t, "YES", 0.95, relabelled))

	v, err := evaluator(llm, after).Evaluate(context.Background(), fedMarket(), corpusOf(blogSource))
	require.NoError(t, err)
	require.Len(t, v.SourceAnalysis, 1)
	assert.Equal(t, domain.SourceUnknown, v.SourceAnalysis[0].SourceType)
	assert.InDelta(t, SingleSourceCap, v.Confidence, 1e-9)
}

func TestEvaluateUncitedSupportingSourcesDoNotCount(t *testing.T) {
	after := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	b, err := json.Marshal(map[string]any{
		"outcome": "YES", "confidence": 0.95, "reasoning": "model reasoning",
		"supporting_sources": []string{blogSource.Title, "Wire flash", "https://elsewhere.example/z", blogSource.URL},
	})
	require.NoError(t, err)
	llm := inferencetest.New().Reply(inference.EvaluatorPrompt, string(b))

	v, err := evaluator(llm, after).Evaluate(context.Background(), fedMarket(), corpusOf(blogSource))
	require.NoError(t, err)
	assert.Equal(t, []string{blogSource.Title}, v.SupportingSources)
	assert.InDelta(t, SingleSourceCap, v.Confidence, 1e-9)
}

func TestEvaluateAbsenceIsNotNo(t *testing.T) {
	after := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	llm := inferencetest.New().Reply(inference.EvaluatorPrompt, evalReplyJSON(t, "NO", 0.9,
		domain.SourceAssessment{SourceTitle: cnnSource.Title, SourceURL: cnnSource.URL, Credibility: 0.7,
			Relevance: domain.RelevanceIndirect, Supports: domain.StanceNeutral},
	))

	v, err := evaluator(llm, after).Evaluate(context.Background(), fedMarket(), corpusOf(cnnSource))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUndetermined, v.Outcome)
	assert.True(t, v.HasFlag(domain.FlagAbsenceNotEvidence))
	assert.InDelta(t, domain.UndeterminedCeiling, v.Confidence, 1e-9)
}

func TestEvaluateNoOfficialConfirmationCap(t *testing.T) {
	after := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	trade := domain.EvidenceSource{Title: "Trade report", URL: "https://coindesk.com/t", SourceType: domain.SourceTrade}
	llm := inferencetest.New().Reply(inference.EvaluatorPrompt, evalReplyJSON(t, "YES", 0.93,
		assess(cnnSource.Title, cnnSource.URL, domain.StanceYes, 0.7),
		assess(trade.Title, trade.URL, domain.StanceYes, 0.6),
	))

	v, err := evaluator(llm, after).Evaluate(context.Background(), fedMarket(), corpusOf(cnnSource, trade))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, v.Outcome)
	assert.InDelta(t, UnconfirmedCap, v.Confidence, 1e-9)
	assert.True(t, v.HasFlag(domain.FlagNoOfficialConfirmation))
}

func TestEvaluateInferenceFailure(t *testing.T) {
	llm := inferencetest.New().Reply(inference.EvaluatorPrompt, "I could not decide.")
	_, err := evaluator(llm, now).Evaluate(context.Background(), fedMarket(), corpusOf(cnnSource))
	assert.ErrorIs(t, err, domain.ErrInferenceUnavailable)
}
