package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON finds the first well-formed JSON array or object embedded in a
// model response. Markdown code fences are stripped first. When nothing
// decodable is found the trimmed input is returned with ok=false.
func ExtractJSON(text string) (string, bool) {
	text = StripCodeFence(text)

	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}

		end := matchingBracket(text, i)
		if end < 0 {
			continue
		}

		candidate := text[i : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	return text, false
}

// StripCodeFence removes a surrounding ```json ... ``` block.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)

	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}

	body := text[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// Drop the language tag line.
		if tag := strings.TrimSpace(body[:nl]); !strings.ContainsAny(tag, "[{") {
			body = body[nl+1:]
		}
	}

	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}

	return strings.TrimSpace(body)
}

// matchingBracket returns the index closing the bracket at open, skipping
// brackets inside string literals, or -1.
func matchingBracket(text string, open int) int {
	var stack []byte

	inString := false
	escaped := false

	for i := open; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}

			continue
		}

		switch ch {
		case '"':
			inString = true
		case '[', '{':
			stack = append(stack, ch)
		case ']', '}':
			if len(stack) == 0 {
				return -1
			}

			top := stack[len(stack)-1]
			if (ch == ']' && top != '[') || (ch == '}' && top != '{') {
				return -1
			}

			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}

	return -1
}
