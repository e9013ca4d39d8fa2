package filterpolicy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fanout/pkg/errors"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		wantJSON string
	}{
		{
			name:     "exact and prefix",
			patterns: []string{"hello.iniesta", "Request.*"},
			wantJSON: `{"fanout_event":["hello.iniesta",{"prefix":"Request."}]}`,
		},
		{
			name:     "order preserved",
			patterns: []string{"Trap.*", "Pass.xavi"},
			wantJSON: `{"fanout_event":[{"prefix":"Trap."},"Pass.xavi"]}`,
		},
		{
			name:     "no patterns",
			patterns: nil,
			wantJSON: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := Translate("fanout_event", tt.patterns)
			require.NoError(t, err)

			raw, err := json.Marshal(policy)
			require.NoError(t, err)
			assert.JSONEq(t, tt.wantJSON, string(raw))
			assert.Equal(t, tt.wantJSON, policy.String())
		})
	}
}

func TestTranslate_DeterministicAndIdempotent(t *testing.T) {
	inputs := [][]string{
		{"a", "b.*", "c"},
		{"Order.*", "Order.created", "Payment.*"},
		{"x"},
		{},
	}

	for _, patterns := range inputs {
		first, err := Translate("k", patterns)
		require.NoError(t, err)
		second, err := Translate("k", patterns)
		require.NoError(t, err)
		assert.True(t, first.Equal(second))
		assert.Equal(t, first.String(), second.String())

		rederived, err := Translate("k", first.Patterns())
		require.NoError(t, err)
		assert.True(t, first.Equal(rederived))
		assert.Equal(t, len(patterns), len(first.Patterns()))
	}
}

func TestTranslate_InvalidPatterns(t *testing.T) {
	for _, pattern := range []string{"", "*", "a*b", "**"} {
		t.Run(pattern, func(t *testing.T) {
			_, err := Translate("k", []string{"ok", pattern})
			require.Error(t, err)
			assert.True(t, apperrors.IsConfiguration(err))
		})
	}
}

func TestParse(t *testing.T) {
	policy, err := Parse(`{"fanout_event": ["Pass.xavi", {"prefix": "Trap."}]}`)
	require.NoError(t, err)

	want, err := Translate("fanout_event", []string{"Pass.xavi", "Trap.*"})
	require.NoError(t, err)
	assert.True(t, want.Equal(policy))

	empty, err := Parse("")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	_, err = Parse(`{"a":["x"],"b":["y"]}`)
	assert.Error(t, err)

	_, err = Parse(`{"a":[{"anything-but":"x"}]}`)
	assert.Error(t, err)
}
