package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_Basic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", int64(-100), "-100"},
		{"bool", true, "true"},
		{"null", nil, "null"},
		{"empty array", []string{}, "[]"},
		{"empty object", map[string]int{}, "{}"},
		{"array", []int{1, 2, 3}, "[1,2,3]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshal_SortsKeys(t *testing.T) {
	got, err := Marshal(map[string]any{
		"zebra": 1,
		"alpha": map[string]int{"b": 1, "a": 2},
		"beta":  3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"beta":3,"zebra":1}`, string(got))
}

func TestMarshal_StructFieldsSorted(t *testing.T) {
	type observed struct {
		Version string `json:"version"`
		Tag     string `json:"tag"`
		Message string `json:"message,omitempty"`
	}

	got, err := Marshal(observed{Version: "1.0.0", Tag: "v1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, `{"tag":"v1.0.0","version":"1.0.0"}`, string(got))
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	got, err := Marshal("feat: <a> & b")
	require.NoError(t, err)
	assert.Equal(t, `"feat: <a> & b"`, string(got))
}

func TestMarshal_LineSeparatorsLiteral(t *testing.T) {
	got, err := Marshal("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))
}

func TestMarshal_ControlCharacters(t *testing.T) {
	got, err := Marshal("line\nnext\t\x01\"\\")
	require.NoError(t, err)
	assert.Equal(t, `"line\nnext\t\u0001\"\\"`, string(got))
}

func TestMarshal_NFC(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"

	a, err := Marshal(decomposed)
	require.NoError(t, err)
	b, err := Marshal(composed)
	require.NoError(t, err)
	assert.Equal(t, b, a)
	assert.Equal(t, "\"\u00e9\"", string(a))
}

func TestMarshal_UTF16KeyOrder(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 byte order but after it in
	// UTF-16 code units (0xFF61 > 0xD83D).
	got, err := Marshal(map[string]int{"\uff61": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uff61\":1}", string(got))
}

func TestMarshal_RejectsFloats(t *testing.T) {
	_, err := Marshal(map[string]any{"x": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshal_Deterministic(t *testing.T) {
	v := map[string]any{"b": []any{"x", 1}, "a": "y", "c": map[string]any{"z": true, "y": false}}
	first, err := Marshal(v)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
