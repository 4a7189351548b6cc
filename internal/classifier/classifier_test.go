package classifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/inference"
	"github.com/alanyoungcy/polyoracle/internal/inference/inferencetest"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func btcMarket() domain.Market {
	return domain.Market{
		ID:                 "btc-100k",
		Question:           "Will BTC close above $100,000 on March 1, 2026?",
		ResolutionCriteria: "Resolves YES if the 1h TWAP of BTC/USD on Binance ending 2026-03-01T00:00:00Z is strictly above 100000.",
		Deadline:           "2026-03-01T00:00:00Z",
	}
}

func TestClassifyDataMarket(t *testing.T) {
	llm := inferencetest.New().Reply(inference.ClassifierPrompt,
		"```json\n{\"marketId\":\"btc-100k\",\"classification\":\"DATA_RESOLVABLE\",\"confidence\":0.97,\"reasoning\":\"Price feed at a fixed time.\",\"flags\":[]}\n```")
	c := New(llm, discard())

	cl, err := c.Classify(context.Background(), btcMarket())
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryData, cl.Category)
	assert.InDelta(t, 0.97, cl.Confidence, 1e-9)
	assert.False(t, cl.RequiresClarification)
	assert.Empty(t, cl.Flags)
}

func TestClassifyEmptyDeadlineNeverResolvable(t *testing.T) {
	for _, label := range []string{"DATA_RESOLVABLE", "EVENT_RESOLVABLE", "CATEGORY_A", "CATEGORY_B"} {
		t.Run(label, func(t *testing.T) {
			llm := inferencetest.New().Reply(inference.ClassifierPrompt,
				`{"classification":"`+label+`","confidence":0.9,"reasoning":"r","flags":[]}`)
			m := btcMarket()
			m.Deadline = ""

			cl, err := New(llm, discard()).Classify(context.Background(), m)
			require.NoError(t, err)
			assert.Equal(t, domain.CategorySubjective, cl.Category)
			assert.True(t, cl.HasFlag(domain.FlagMissingDeadline))
		})
	}
}

func TestClassifyLowConfidenceFlag(t *testing.T) {
	llm := inferencetest.New().Reply(inference.ClassifierPrompt,
		`{"classification":"EVENT_RESOLVABLE","confidence":0.55,"reasoning":"unclear source","flags":["AMBIGUOUS_SOURCE"],"requires_clarification":false}`)

	cl, err := New(llm, discard()).Classify(context.Background(), btcMarket())
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryEvent, cl.Category)
	assert.True(t, cl.HasFlag(domain.FlagLowConfidenceClassification))
	assert.True(t, cl.HasFlag("AMBIGUOUS_SOURCE"))
	assert.True(t, cl.RequiresClarification)
}

func TestClassifyAtThresholdIsNotLowConfidence(t *testing.T) {
	llm := inferencetest.New().Reply(inference.ClassifierPrompt,
		`{"classification":"EVENT_RESOLVABLE","confidence":0.60,"reasoning":"r","flags":[]}`)

	cl, err := New(llm, discard()).Classify(context.Background(), btcMarket())
	require.NoError(t, err)
	assert.False(t, cl.HasFlag(domain.FlagLowConfidenceClassification))
}

func TestClassifyUnknownCategoryIsMalformed(t *testing.T) {
	llm := inferencetest.New().Reply(inference.ClassifierPrompt,
		`{"classification":"CATEGORY_Z","confidence":0.9,"reasoning":"","flags":[]}`)

	cl, err := New(llm, discard()).Classify(context.Background(), btcMarket())
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryMalformed, cl.Category)
	assert.True(t, cl.HasFlag(domain.FlagUnknownCategory))
	assert.NotEmpty(t, cl.Reasoning)
}

func TestClassifyMissingFieldsSkipsInference(t *testing.T) {
	llm := inferencetest.New()
	c := New(llm, discard())

	cl, err := c.Classify(context.Background(), domain.Market{ID: "x", Question: "Will it?", Deadline: "2026-01-01"})
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryMalformed, cl.Category)
	assert.Contains(t, cl.Reasoning, "resolution_criteria")
	assert.Empty(t, llm.Calls())
}

func TestClassifySubjectiveMarket(t *testing.T) {
	llm := inferencetest.New().Reply(inference.ClassifierPrompt,
		`{"classification":"SUBJECTIVE","confidence":0.95,"reasoning":"Depends on opinion.","flags":["SUBJECTIVE_LANGUAGE"]}`)
	m := domain.Market{
		ID:                 "ai-successful",
		Question:           "Will AI be considered successful in 2030?",
		ResolutionCriteria: "Resolves YES if AI is widely considered successful.",
		Deadline:           "2030-12-31",
	}

	cl, err := New(llm, discard()).Classify(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, domain.CategorySubjective, cl.Category)
}

func TestClassifyInferenceFailure(t *testing.T) {
	llm := inferencetest.New().Reply(inference.ClassifierPrompt, "not json at all")

	_, err := New(llm, discard()).Classify(context.Background(), btcMarket())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInferenceUnavailable))
}

func TestClassifyClampsConfidence(t *testing.T) {
	llm := inferencetest.New().Reply(inference.ClassifierPrompt,
		`{"classification":"DATA_RESOLVABLE","confidence":1.4,"reasoning":"r","flags":[]}`)

	cl, err := New(llm, discard()).Classify(context.Background(), btcMarket())
	require.NoError(t, err)
	assert.Equal(t, 1.0, cl.Confidence)
}
