package llm

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{
			name:   "pure_object",
			input:  `{"key":"value"}`,
			want:   `{"key":"value"}`,
			wantOK: true,
		},
		{
			name:   "pure_array",
			input:  `[{"a":1}]`,
			want:   `[{"a":1}]`,
			wantOK: true,
		},
		{
			name:   "array_with_preamble",
			input:  `Here are the claims: [{"claim_text":"x"}]`,
			want:   `[{"claim_text":"x"}]`,
			wantOK: true,
		},
		{
			name:   "object_with_preamble",
			input:  `Here: {"key":"value"} done.`,
			want:   `{"key":"value"}`,
			wantOK: true,
		},
		{
			name:   "first_structure_wins",
			input:  `Text [{"a":1}] and {"b":2}`,
			want:   `[{"a":1}]`,
			wantOK: true,
		},
		{
			name:   "nested_brackets_in_strings",
			input:  `{"route":"[Asia]-Europe","key":"val"}`,
			want:   `{"route":"[Asia]-Europe","key":"val"}`,
			wantOK: true,
		},
		{
			name:   "no_json",
			input:  "just some text",
			want:   "just some text",
			wantOK: false,
		},
		{
			name:   "invalid_json_brackets",
			input:  `text { not json } more`,
			want:   "text { not json } more",
			wantOK: false,
		},
		{
			name:   "markdown_wrapped_array",
			input:  "```json\n[{\"claim_text\":\"claim\"}]\n```",
			want:   `[{"claim_text":"claim"}]`,
			wantOK: true,
		},
		{
			name:   "markdown_without_language_tag",
			input:  "```\n{\"a\":1}\n```",
			want:   `{"a":1}`,
			wantOK: true,
		},
		{
			name:   "garbage_before_valid_array",
			input:  `note [draft] [{"claim_text":"real claim"}]`,
			want:   `[{"claim_text":"real claim"}]`,
			wantOK: true,
		},
		{
			name:   "empty_array",
			input:  `Result: []`,
			want:   `[]`,
			wantOK: true,
		},
		{
			name:   "escaped_quote_in_string",
			input:  `[{"claim_text":"the \"Maersk\" fleet ]"}]`,
			want:   `[{"claim_text":"the \"Maersk\" fleet ]"}]`,
			wantOK: true,
		},
		{
			name:   "nested_arrays",
			input:  `[{"items":[1,2,3]},{"items":[4,5]}]`,
			want:   `[{"items":[1,2,3]},{"items":[4,5]}]`,
			wantOK: true,
		},
		{
			name:   "unterminated",
			input:  `[{"claim_text":"cut off`,
			want:   `[{"claim_text":"cut off`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractJSON(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
