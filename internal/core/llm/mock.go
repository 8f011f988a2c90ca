package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// APIKeyMock selects the offline completer.
const APIKeyMock = "mock"

const mockReply = `SUPPORT: No
CONFIDENCE: 0.0
EVIDENCE: none
LIMITATIONS: offline completer, no model configured`

// Extraction prompts carry the narrative between these labels.
const (
	mockContentLabel = "Research content:"
	mockTargetsLabel = "Validation targets:"
)

var mockSentence = regexp.MustCompile(`[^.!?\n]+`)

// mockCompleter answers analysis prompts with an unsupported verdict. Prompts
// that ask for JSON get the narrative echoed back as quoted sentences, so
// claims come from the keyword fallback.
type mockCompleter struct {
	logger *zerolog.Logger
}

// NewMock creates the offline completer used when LLM_API_KEY is "mock".
func NewMock(logger *zerolog.Logger) Completer {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	return &mockCompleter{logger: logger}
}

func (m *mockCompleter) Complete(_ context.Context, system, user string) (string, error) {
	m.logger.Debug().Int("prompt_len", len(user)).Msg("mock completion")

	if strings.Contains(system, "JSON") {
		return quoteSentences(mockNarrative(user)), nil
	}

	return mockReply, nil
}

// mockNarrative returns the text after the content label and before the
// targets label, or the whole prompt when the labels are absent.
func mockNarrative(user string) string {
	if _, after, found := strings.Cut(user, mockContentLabel); found {
		user = after
	}

	if before, _, found := strings.Cut(user, mockTargetsLabel); found {
		user = before
	}

	return user
}

func quoteSentences(text string) string {
	var sb strings.Builder

	for _, s := range mockSentence.FindAllString(strings.ReplaceAll(text, `"`, ""), -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}

		sb.WriteString(`"`)
		sb.WriteString(s)
		sb.WriteString("\"\n")
	}

	return sb.String()
}
