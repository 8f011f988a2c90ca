package llm

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lueurxax/maritime-claim-validator/internal/platform/config"
)

// Completer turns a system and user prompt into free text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, system, user string) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// New creates the completion client used by the validation pipeline.
// Responses are cached when LLM_CACHE_TTL is positive. The API key "mock"
// selects the offline completer.
func New(cfg *config.Config, logger *zerolog.Logger) Completer {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	if cfg.LLMAPIKey == APIKeyMock {
		logger.Warn().Msg("using mock completer, claims come from keyword heuristics")
		return NewMock(logger)
	}

	var client Completer = NewOpenAI(cfg, logger)

	if cfg.LLMCacheTTL > 0 {
		client = NewCachedCompleter(client, cfg.LLMCacheTTL, logger)
	}

	return client
}
