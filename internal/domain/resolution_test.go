package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideSettlement(t *testing.T) {
	tests := []struct {
		name       string
		category   Category
		confidence float64
		want       SettlementAction
	}{
		{"settle at threshold", CategoryEvent, 0.85, ActionSettle},
		{"settle above", CategoryData, 0.99, ActionSettle},
		{"defer just below settle", CategoryEvent, 0.8499, ActionDefer},
		{"defer at lower bound", CategoryEvent, 0.70, ActionDefer},
		{"escalate just below defer", CategoryEvent, 0.6999, ActionEscalate},
		{"escalate at zero", CategoryData, 0, ActionEscalate},
		{"subjective always rejects", CategorySubjective, 0.99, ActionReject},
		{"malformed always rejects", CategoryMalformed, 1.0, ActionReject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideSettlement(tt.category, tt.confidence))
		})
	}
}

func TestDecideSettlementIsPure(t *testing.T) {
	for i := 0; i < 100; i++ {
		c := float64(i) / 100
		assert.Equal(t, DecideSettlement(CategoryEvent, c), DecideSettlement(CategoryEvent, c))
	}
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.2))
	assert.Equal(t, 1.0, ClampConfidence(1.7))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
}
