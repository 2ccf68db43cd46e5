package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		want  string
		isErr bool
	}{
		{name: "bare object", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced json", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "fenced no lang", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around object", in: "Here you go:\n{\"a\":1}\nDone.", want: `{"a":1}`},
		{name: "no object", in: "sorry, I cannot do that", isErr: true},
		{name: "empty", in: "", isErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			if tc.isErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTruncateStr(t *testing.T) {
	assert.Equal(t, "short", TruncateStr("short", 10))
	assert.Equal(t, "abc...", TruncateStr("abcdef", 3))
}

func TestFlexFloat(t *testing.T) {
	var v struct {
		Score FlexFloat `json:"score"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"score": 7.5}`), &v))
	assert.Equal(t, 7.5, v.Score.Float64())

	require.NoError(t, json.Unmarshal([]byte(`{"score": "8"}`), &v))
	assert.Equal(t, 8.0, v.Score.Float64())

	require.NoError(t, json.Unmarshal([]byte(`{"score": "high"}`), &v))
	assert.Equal(t, 0.0, v.Score.Float64())
}

func TestFlexString(t *testing.T) {
	var v struct {
		Detail FlexString `json:"detail"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"detail": "plain"}`), &v))
	assert.Equal(t, "plain", v.Detail.String())

	require.NoError(t, json.Unmarshal([]byte(`{"detail": ["a","b"]}`), &v))
	assert.Equal(t, "a\nb", v.Detail.String())
}
