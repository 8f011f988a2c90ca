package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/lueurxax/maritime-claim-validator/internal/core/errors"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/config"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/observability"
)

// chatCompleter is the slice of the go-openai client used here.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type openaiClient struct {
	cfg         *config.Config
	client      chatCompleter
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

const (
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 1 * time.Minute
	rateLimiterBurst        = 2
	logPreviewLength        = 200
)

// NewOpenAI creates an OpenAI-compatible chat completion client.
func NewOpenAI(cfg *config.Config, logger *zerolog.Logger) Completer {
	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}

	return newOpenAIClient(cfg, openai.NewClientWithConfig(clientCfg), logger)
}

func newOpenAIClient(cfg *config.Config, client chatCompleter, logger *zerolog.Logger) *openaiClient {
	limit := rate.Inf
	if cfg.LLMRateLimit > 0 {
		limit = rate.Limit(cfg.LLMRateLimit)
	}

	return &openaiClient{
		cfg:         cfg,
		client:      client,
		logger:      logger,
		rateLimiter: rate.NewLimiter(limit, rateLimiterBurst),
	}
}

func (c *openaiClient) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("%w until %v", errors.ErrCircuitBreakerOpen, c.circuitOpenUntil)
	}

	return nil
}

func (c *openaiClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
}

func (c *openaiClient) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= circuitBreakerThreshold {
		c.circuitOpenUntil = time.Now().Add(circuitBreakerTimeout)
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.circuitOpenUntil).
			Msg("Circuit breaker opened")
	}
}

// Complete sends one system+user exchange and returns the first choice.
func (c *openaiClient) Complete(ctx context.Context, system, user string) (string, error) {
	if err := c.checkCircuit(); err != nil {
		return "", err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	if c.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.cfg.LLMTimeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	model := c.resolveModel()
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.cfg.LLMTemperature,
		MaxTokens:   c.cfg.LLMMaxTokens,
	})

	observability.CompletionDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())

	if err != nil {
		c.recordFailure()
		observability.CompletionRequests.WithLabelValues(model, observability.StatusError).Inc()

		return "", fmt.Errorf("openai chat completion error: %w", err)
	}

	c.recordSuccess()

	if len(resp.Choices) == 0 {
		observability.CompletionRequests.WithLabelValues(model, observability.StatusError).Inc()
		return "", errors.ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		observability.CompletionRequests.WithLabelValues(model, observability.StatusError).Inc()
		return "", errors.ErrEmptyResponse
	}

	observability.CompletionRequests.WithLabelValues(model, observability.StatusSuccess).Inc()

	if resp.Choices[0].FinishReason == openai.FinishReasonLength {
		c.logger.Warn().
			Str("model", model).
			Int("max_tokens", c.cfg.LLMMaxTokens).
			Msg("LLM output truncated due to max_tokens limit")
	}

	c.logger.Debug().Str("model", model).Str("content", truncate(content, logPreviewLength)).Msg("LLM response")

	return content, nil
}

func (c *openaiClient) resolveModel() string {
	if c.cfg.LLMModel != "" {
		return c.cfg.LLMModel
	}

	return openai.GPT4oMini
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}

	runes := []rune(s)

	return string(runes[:max]) + "..."
}
