// Package llm talks to chat-completion endpoints and applies the retry policy for rate-limited calls.
package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/talk2db/talk2db/internal/observability"
	"github.com/talk2db/talk2db/internal/retry"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat-completion call with its sampling parameters.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Provider performs a single chat-completion call and returns the raw content of the first choice.
type Provider interface {
	ChatCompletion(ctx context.Context, req Request) (string, error)
}

type Params struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// DefaultPolicy retries rate-limited calls three times in total, waiting 4s and then 8s.
func DefaultPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: 4 * time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2,
		Retryable:      IsRateLimited,
	}
}

type Client struct {
	provider Provider
	params   Params
	policy   retry.Policy
	logger   *slog.Logger
}

func NewClient(provider Provider, params Params, policy retry.Policy, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if policy.Retryable == nil {
		policy.Retryable = IsRateLimited
	}
	return &Client{provider: provider, params: params, policy: policy, logger: logger}
}

// WithTemperature returns a client sharing the provider and policy but sampling at temperature.
func (c *Client) WithTemperature(temperature float64) *Client {
	clone := *c
	clone.params.Temperature = temperature
	return &clone
}

// Complete sends messages to the provider, retrying rate-limited calls, and returns the content with any
// surrounding code fence removed.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	req := Request{
		Messages:    messages,
		Temperature: c.params.Temperature,
		MaxTokens:   c.params.MaxTokens,
		TopP:        c.params.TopP,
	}

	policy := c.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		observability.IncrementCompletionRetry()
		c.logger.WarnContext(ctx, "completion rate limited, retrying",
			observability.TraceAttr(ctx),
			slog.Int("attempt", attempt),
			slog.String("delay", delay.String()),
			slog.String("error", err.Error()),
		)
	}

	attempts := 0
	content, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		attempts++
		content, err := c.provider.ChatCompletion(ctx, req)
		switch {
		case err == nil:
			observability.ObserveCompletionAttempt("ok")
		case IsRateLimited(err):
			observability.ObserveCompletionAttempt("rate_limited")
		default:
			observability.ObserveCompletionAttempt("error")
		}
		return content, err
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			err = exhausted.Err
		}
		c.logger.ErrorContext(ctx, "completion failed",
			observability.TraceAttr(ctx),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
		return "", &CompletionError{Attempts: attempts, Err: err}
	}
	return StripCodeFence(content), nil
}

// StripCodeFence removes a leading ``` marker with its optional language tag (```json, ```SQL) and a
// trailing ``` marker, then trims whitespace.
func StripCodeFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "```"); ok {
		tagEnd := strings.IndexFunc(rest, func(r rune) bool { return !isFenceTagRune(r) })
		if tagEnd < 0 {
			tagEnd = len(rest)
		}
		trimmed = rest[tagEnd:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func isFenceTagRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '+'
}
