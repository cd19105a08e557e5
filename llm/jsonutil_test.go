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
		wantKey string
	}{
		{
			name:    "plain object",
			input:   `{"morning": {"location": "西湖"}}`,
			wantKey: "morning",
		},
		{
			name:    "fenced block with commentary after",
			input:   "```json\n{\"lunch\": {\"name\": \"楼外楼\"}}\n```\n\n以上是行程安排。",
			wantKey: "lunch",
		},
		{
			name:    "preamble before object",
			input:   "好的，以下是第1天的行程：\n{\"dinner\": {\"cost\": \"200元\"}}",
			wantKey: "dinner",
		},
		{
			name:    "comments and trailing commas",
			input:   "```json\n{\n  \"evening\": {\n    \"location\": \"河坊街\", // 夜市\n    \"cost\": 50,\n  },\n}\n```",
			wantKey: "evening",
		},
		{
			name:    "url inside value survives",
			input:   `{"url": "https://example.com/guide"} // source`,
			wantKey: "url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractJSON(tt.input)
			require.NotEmpty(t, result)

			var parsed map[string]any
			require.NoError(t, json.Unmarshal([]byte(result), &parsed), result)
			assert.Contains(t, parsed, tt.wantKey)
		})
	}
}

func TestExtractJSON_NoObject(t *testing.T) {
	assert.Empty(t, ExtractJSON(""))
	assert.Empty(t, ExtractJSON("上午参观灵隐寺，下午游览西湖。"))
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, "上午：西湖", StripCodeFences("```text\n上午：西湖\n```"))
	assert.Equal(t, "no fences", StripCodeFences("no fences"))
}

func TestStripLineComment(t *testing.T) {
	assert.Equal(t, `"a": 1,`, stripLineComment(`"a": 1, // note`))
	assert.Equal(t, `"u": "http://x"`, stripLineComment(`"u": "http://x"`))
	assert.Equal(t, `"q": "a\"//b"`, stripLineComment(`"q": "a\"//b"`))
}
