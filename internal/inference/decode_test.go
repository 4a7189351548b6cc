package inference

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence without newline", "```{\"a\":1}```", `{"a":1}`},
		{"leading prose", "Here you go:\n{\"a\":1}", `{"a":1}`},
		{"trailing prose", "{\"a\":1}\nHope this helps.", `{"a":1}`},
		{"array", "```json\n[1,2]\n```", `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestDecode(t *testing.T) {
	type out struct {
		Outcome string `json:"outcome"`
	}

	got, err := Decode[out]("```json\n{\"outcome\":\"YES\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "YES", got.Outcome)

	_, err = Decode[out]("   ")
	assert.True(t, errors.Is(err, domain.ErrInferenceUnavailable))

	_, err = Decode[out]("I cannot help with that")
	assert.True(t, errors.Is(err, domain.ErrInferenceUnavailable))
}
