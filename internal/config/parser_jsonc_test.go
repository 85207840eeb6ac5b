package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONC(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		absent   []string
		wantErr  string
	}{
		{
			name: "comments and trailing commas",
			input: `{
  // clinic defaults
  "recorder": {
    "encodings": ["audio/wav", /* fallback only */ ],
  },
}`,
			contains: []string{`"audio/wav"`},
			absent:   []string{"//", "/*", ",]", ",}"},
		},
		{
			name:     "comment markers inside strings survive",
			input:    `{"indicator":{"desktop_app_name":"scribe // ward /* 4 */"},}`,
			contains: []string{"scribe // ward /* 4 */"},
		},
		{
			name:     "escaped quote does not end the string",
			input:    `{"vocab":{"sets":{"x":{"phrases":["say \"q.d.\" // daily"]}}}}`,
			contains: []string{`// daily`},
		},
		{
			name:    "unterminated block comment",
			input:   "{ /* unterminated ",
			wantErr: "unterminated block comment",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			normalized, err := normalizeJSONC(tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			for _, want := range tc.contains {
				require.Contains(t, normalized, want)
			}
			for _, gone := range tc.absent {
				require.NotContains(t, normalized, gone)
			}
		})
	}
}

func TestEnsureSingleJSONValueRejectsExtraPayload(t *testing.T) {
	decoder := json.NewDecoder(strings.NewReader(`{"log":{}}{"log":{}}`))
	var payload map[string]any
	require.NoError(t, decoder.Decode(&payload))

	err := ensureSingleJSONValue(decoder)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "{\n  \"session\": {}\n}"
	tests := []struct {
		offset   int64
		wantLine int
		wantCol  int
	}{
		{offset: 1, wantLine: 1, wantCol: 1},
		{offset: 5, wantLine: 2, wantCol: 3},
		{offset: 999, wantLine: 3, wantCol: 1},
	}
	for _, tc := range tests {
		line, col := offsetToLineCol(content, tc.offset)
		require.Equal(t, tc.wantLine, line, "offset %d", tc.offset)
		require.Equal(t, tc.wantCol, col, "offset %d", tc.offset)
	}
}

func TestParseJSONCSessionTypeErrorPointsAtValue(t *testing.T) {
	_, _, err := parseJSONC(`{
  // visit limits
  "session": {
    "stop_grace_ms": "half a second"
  }
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 4")
	require.Contains(t, err.Error(), "stop_grace_ms")
}

func TestJSONCStringListUnmarshal(t *testing.T) {
	var list jsoncStringList
	require.NoError(t, list.UnmarshalJSON([]byte(`["a","b"]`)))
	require.Equal(t, []string{"a", "b"}, []string(list))

	require.NoError(t, list.UnmarshalJSON([]byte(`"a, b, , c"`)))
	require.Equal(t, []string{"a", "b", "c"}, []string(list))

	err := list.UnmarshalJSON([]byte(`123`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected string array")
}

func TestParseJSONCRejectsInvalidCommandArgv(t *testing.T) {
	_, _, err := parseJSONC(`{"output":{"clipboard_cmd":"unterminated ' quote"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid output.clipboard_cmd")
}

func TestParseJSONCVocabRejectsEmptySetName(t *testing.T) {
	_, _, err := parseJSONC(`{"vocab":{"sets":{" ":{"phrases":["x"]}}}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty set name")
}

func TestParseJSONCTrimsStringFields(t *testing.T) {
	cfg, _, err := parseJSONC(`{
  "recognizer": {"grpc": "  10.0.0.5:50051 ", "language": " en-GB "},
  "indicator": {"desktop_app_name": "  scribe-indicator  "},
  "log": {"level": " DEBUG "}
}`, Default())
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:50051", cfg.Recognizer.GRPC)
	require.Equal(t, "en-GB", cfg.Recognizer.Language)
	require.Equal(t, "scribe-indicator", cfg.Indicator.DesktopAppName)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := parseJSONC(`{"log":{"level":"info"}}{"log":{"level":"debug"}}`, Default())
	require.Error(t, err)
	require.True(
		t,
		strings.Contains(err.Error(), "multiple JSON values") || strings.Contains(err.Error(), "unknown field"),
		"unexpected error: %v",
		err,
	)
}

func TestParseJSONCTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := parseJSONC(`{
  "recognizer": {"grpc": 123}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
	require.Contains(t, err.Error(), "column")
}

func TestParseJSONCRejectsUnknownFields(t *testing.T) {
	_, _, err := parseJSONC(`{"transcriber":{"grpc":"127.0.0.1:50051"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseJSONCVocabGlobalSupportsCommaString(t *testing.T) {
	cfg, _, err := parseJSONC(`{
  "vocab": {
    "global": "one, two, , three",
    "sets": {
      "one": {"phrases": ["one"]},
      "two": {"phrases": ["two"]},
      "three": {"phrases": ["three"]}
    }
  }
}`, Default())
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three"}, cfg.Vocab.GlobalSets)
}

func TestParseJSONCWarnsOnEmptyVocabSet(t *testing.T) {
	_, warnings, err := parseJSONC(`{"vocab":{"sets":{"cardiology":{"boost":12}}}}`, Default())
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	require.Contains(t, warnings[0].Message, `"cardiology" has no phrases`)
}
