// Package suggest proposes a next action for tickets that match no known issue.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/retry"
)

const (
	// NotConfiguredAction is returned when no language model is available.
	NotConfiguredAction = "Ask user for steps to reproduce the issue, relevant screenshots, and error codes."
	// FailureAction is returned when the language model call fails.
	FailureAction = "Ask the user for reproduction steps, environment details, and screenshots."

	// DefaultTimeout bounds a single completion attempt.
	DefaultTimeout = 15 * time.Second

	temperature = 0.2
	maxTokens   = 120

	collaborator = "suggester"
)

var errEmptyOutput = errors.New("empty suggestion")

const promptTemplate = `You are a support engineer.

Given the following ticket:

"""{{description}}"""

Provide a clear, actionable next step for the support agent to follow.
Not a summary, not a classification: just the next action.

Format: a short 1-2 sentence actionable recommendation.

Examples:
- Ask the user to check X and collect Y logs.
- Suggest verifying their account settings.
- Request steps to reproduce and any screenshots.
- Guide the user through checking device settings.

Return ONLY plain text, no JSON.
`

// Service asks a language model for a next action, with fixed fallbacks.
type Service struct {
	llm       domain.Completer // nil = NotConfiguredAction
	policy    retry.Policy
	timeout   time.Duration
	fallbacks *prometheus.CounterVec // labels: collaborator, reason
	logger    *zap.Logger
}

// New creates a suggester. The zero retry.Policy is fail-fast.
func New(
	llm domain.Completer,
	policy retry.Policy,
	timeout time.Duration,
	fallbacks *prometheus.CounterVec,
	logger *zap.Logger,
) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{llm: llm, policy: policy, timeout: timeout, fallbacks: fallbacks, logger: logger}
}

// Suggest returns a next action. Model failures produce FailureAction;
// only caller cancellation is returned as an error.
func (s *Service) Suggest(ctx context.Context, description string) (string, error) {
	if s.llm == nil {
		s.incFallback("not_configured")
		return NotConfiguredAction, nil
	}

	req := domain.CompletionRequest{
		Prompt:      strings.Replace(promptTemplate, "{{description}}", description, 1),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	var action string
	err := s.policy.Do(ctx, domain.IsTransient, func(ctx context.Context) error {
		out, err := s.completeOnce(ctx, req)
		if err != nil {
			return err
		}
		action = out
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("suggest: %w", ctxErr)
		}
		s.incFallback("unavailable")
		s.logger.Warn("Next-action suggestion failed, using fallback", zap.Error(err))
		return FailureAction, nil
	}
	return action, nil
}

func (s *Service) completeOnce(ctx context.Context, req domain.CompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.llm.Complete(callCtx, req)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return "", fmt.Errorf("%w: timed out after %s", domain.ErrLLMUnavailable, s.timeout)
		}
		return "", err //nolint:wrapcheck // classified by the transport
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errEmptyOutput
	}
	return out, nil
}

func (s *Service) incFallback(reason string) {
	if s.fallbacks != nil {
		s.fallbacks.WithLabelValues(collaborator, reason).Inc()
	}
}
