package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string // if non-empty, check this key exists in parsed JSON
		wantErr bool
	}{
		{
			name:    "plain JSON",
			input:   `{"policy_number": "BP-4429871"}`,
			wantKey: "policy_number",
		},
		{
			name:    "markdown code block",
			input:   "```json\n{\"policy_number\": \"BP-4429871\"}\n```",
			wantKey: "policy_number",
		},
		{
			name:    "markdown block with trailing prose",
			input:   "```json\n{\"coverages\": []}\n```\n\nI extracted the coverages listed above.",
			wantKey: "coverages",
		},
		{
			name: "JS comments in arrays",
			input: "```json\n{\n  \"exclusions\": [\n    \"earth movement\",   // CG 21 47\n    \"fungi or bacteria\"  // CG 21 67\n  ]\n}\n```",
			wantKey: "exclusions",
		},
		{
			name: "trailing commas",
			input: "```json\n{\n  \"endorsements\": [\n    \"CA T3 53\",\n    \"CG 20 10\",\n  ],\n}\n```",
			wantKey: "endorsements",
		},
		{
			name:    "URL in string not stripped",
			input:   `{"carrier_site": "https://example.com/claims"}`,
			wantKey: "carrier_site",
		},
		{
			name:    "comment after closing brace",
			input:   "{\"form_number\": \"CA 00 01\"} // base form",
			wantKey: "form_number",
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
		{
			name:    "no JSON at all",
			input:   "The document contains no extractable entities.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractJSON(tt.input)

			if tt.wantErr {
				assert.Empty(t, result)
				return
			}

			require.NotEmpty(t, result)

			var parsed map[string]any
			require.NoError(t, json.Unmarshal([]byte(result), &parsed), "result: %s", result)
			assert.Contains(t, parsed, tt.wantKey)
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr bool
	}{
		{
			name:    "plain array",
			input:   `[{"subject": "policy:bp-4429871"}, {"subject": "org:acme"}]`,
			wantLen: 2,
		},
		{
			name:    "fenced array with trailing comma",
			input:   "```json\n[\n  {\"type\": \"HAS_COVERAGE\"},\n]\n```",
			wantLen: 1,
		},
		{
			name:    "no array",
			input:   "nothing here",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractJSONArray(tt.input)

			if tt.wantErr {
				assert.Empty(t, result)
				return
			}

			var parsed []map[string]any
			require.NoError(t, json.Unmarshal([]byte(result), &parsed), "result: %s", result)
			assert.Len(t, parsed, tt.wantLen)
		})
	}
}

func TestStripLineComment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"path": "a//b"`, `"path": "a//b"`},
		{`"x": 1, // note`, `"x": 1,`},
		{`"escaped \" quote" // gone`, `"escaped \" quote"`},
		{`no comment`, `no comment`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, stripLineComment(tt.in))
	}
}
