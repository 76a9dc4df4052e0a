// Package extract turns a free-text ticket into summary, category and severity.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/retry"
	"github.com/kailas-cloud/triage/internal/domain/ticket"
)

const (
	// DefaultTimeout bounds a single completion attempt.
	DefaultTimeout = 20 * time.Second

	temperature = 0
	maxTokens   = 200

	collaborator = "extractor"
)

// DefaultPolicy retries transient failures three times with 1.2s doubling backoff.
func DefaultPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: 1200 * time.Millisecond, Multiplier: 2}
}

// Service extracts ticket fields with a language model and falls back to keyword heuristics.
type Service struct {
	llm       domain.Completer // nil = heuristic only
	policy    retry.Policy
	timeout   time.Duration
	fallbacks *prometheus.CounterVec // labels: collaborator, reason
	logger    *zap.Logger
}

// New creates an extractor. Pass a nil completer to always use heuristics.
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

// Extract never fails: any model problem yields heuristic fields.
func (s *Service) Extract(ctx context.Context, description string) ticket.Fields {
	if s.llm == nil {
		s.incFallback("not_configured")
		return Heuristic(description)
	}

	fields, err := s.extractWithModel(ctx, description)
	if err != nil {
		reason := "unavailable"
		if errors.Is(err, domain.ErrMalformedResponse) {
			reason = "malformed"
		}
		s.incFallback(reason)
		s.logger.Warn("Extraction failed, using heuristic fields",
			zap.String("reason", reason), zap.Error(err))
		return Heuristic(description)
	}
	return fields
}

func (s *Service) extractWithModel(ctx context.Context, description string) (ticket.Fields, error) {
	req := domain.CompletionRequest{
		Prompt:      buildPrompt(description),
		JSON:        true,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	var content string
	err := s.policy.Do(ctx, domain.IsTransient, func(ctx context.Context) error {
		out, err := s.completeOnce(ctx, req)
		if err != nil {
			s.logger.Debug("Extraction attempt failed", zap.Error(err))
			return err
		}
		content = out
		return nil
	})
	if err != nil {
		return ticket.Fields{}, fmt.Errorf("complete: %w", err)
	}

	return parseFields(content)
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
	return out, nil
}

func (s *Service) incFallback(reason string) {
	if s.fallbacks != nil {
		s.fallbacks.WithLabelValues(collaborator, reason).Inc()
	}
}
