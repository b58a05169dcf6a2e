package record

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y int
}

func TestEnvelope(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want JSON
	}{
		{"int", 5, `{"type":"int","value":5}`},
		{"float", 2.5, `{"type":"float","value":2.5}`},
		{"string", "hi", `{"type":"string","value":"hi"}`},
		{"bool", true, `{"type":"bool","value":true}`},
		{"nil", nil, `{"type":"null","value":null}`},
		{"slice", []int{1, 2}, `{"type":"array","value":[1,2]}`},
		{"map", map[string]int{"b": 2, "a": 1}, `{"type":"object","value":{"a":1,"b":2}}`},
		{"error", errors.New("bad"), `{"type":"error","value":"bad"}`},
		{"duration", 1500 * time.Millisecond, `{"type":"duration","value":1.5}`},
		{"struct", point{1, 2}, `{"type":"object","value":"{X:1 Y:2}"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Envelope(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeJSON_Canonical(t *testing.T) {
	got, err := EncodeJSON(map[string]any{
		"z": []any{"<a&b>", 1, nil},
		"a": map[string]any{"y": false, "x": JSON(`{ "k" : 1 }`)},
	})
	require.NoError(t, err)
	assert.Equal(t, JSON(`{"a":{"x":{"k":1},"y":false},"z":["<a&b>",1,null]}`), got)
}

func TestEncodeJSON_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to a single code point.
	got, err := EncodeJSON("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, JSON("\"\u00e9\""), got)
}

func TestEncodeJSON_UTF16KeyOrder(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 byte order but after its surrogate
	// pair in UTF-16 code unit order.
	got, err := EncodeJSON(map[string]any{"\uFF61": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, JSON("{\"\U0001F600\":2,\"\uFF61\":1}"), got)
}

func TestEncodeJSON_Errors(t *testing.T) {
	_, err := EncodeJSON(math.NaN())
	assert.Error(t, err)

	_, err = EncodeJSON(JSON(`{broken`))
	assert.Error(t, err)

	deep := []any{}
	for i := 0; i < maxEncodeDepth+2; i++ {
		deep = []any{deep}
	}
	_, err = EncodeJSON(deep)
	assert.ErrorIs(t, err, errTooDeep)
}

func TestEncodeJSON_Pointers(t *testing.T) {
	n := 7
	got, err := EncodeJSON(&n)
	require.NoError(t, err)
	assert.Equal(t, JSON("7"), got)

	var nilPtr *int
	got, err = EncodeJSON(nilPtr)
	require.NoError(t, err)
	assert.Equal(t, JSON("null"), got)
}
