// Package anthropic adapts the Claude messages API to the completion contract.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/metrics"
)

// DefaultModel is used when the config leaves the model empty.
const DefaultModel = "claude-3-5-haiku-latest"

const jsonInstruction = "Respond with a single JSON object and nothing else."

// Config holds Claude client settings.
type Config struct {
	APIKey       string
	BaseURL      string // empty = api.anthropic.com
	Model        string
	Collaborator string // metrics label: extractor, suggester
	Logger       *zap.Logger
}

// Client implements domain.Completer over the messages API.
type Client struct {
	client       *anthropic.Client
	model        string
	collaborator string
	logger       *zap.Logger
}

// New creates a Claude completer.
func New(cfg *Config) *Client {
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		client:       anthropic.NewClient(cfg.APIKey, opts...),
		model:        model,
		collaborator: cfg.Collaborator,
		logger:       cfg.Logger,
	}
}

// Complete sends a single user message. JSON requests get a system instruction,
// since the messages API has no JSON response mode.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	temp := req.Temperature
	msgReq := anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(req.Prompt)},
			},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: &temp,
	}
	if req.JSON {
		msgReq.System = jsonInstruction
	}

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, msgReq)
	duration := time.Since(start)

	if err != nil {
		err = classify(err)
		c.observe(err, duration)
		return "", err
	}

	var sb strings.Builder
	for _, part := range resp.Content {
		if part.Text != nil {
			sb.WriteString(*part.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		err = fmt.Errorf("no text content: %w", domain.ErrMalformedResponse)
		c.observe(err, duration)
		return "", err
	}

	c.observe(nil, duration)
	c.logger.Debug("Claude completion finished",
		zap.String("model", c.model),
		zap.String("collaborator", c.collaborator),
		zap.Duration("duration", duration),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
	)
	return out, nil
}

// classify maps API failures onto the domain taxonomy.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("claude: %w", err)
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch string(apiErr.Type) {
		case "rate_limit_error":
			return fmt.Errorf("claude: %s: %w", apiErr.Message, domain.ErrRateLimited)
		case "overloaded_error", "api_error", "timeout_error":
			return fmt.Errorf("claude: %s: %w", apiErr.Message, domain.ErrLLMUnavailable)
		default:
			return fmt.Errorf("claude: %s (%s)", apiErr.Message, apiErr.Type)
		}
	}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("claude: status %d: %w", reqErr.StatusCode, domain.ErrRateLimited)
		case reqErr.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("claude: status %d: %w", reqErr.StatusCode, domain.ErrLLMUnavailable)
		default:
			return fmt.Errorf("claude: status %d: %w", reqErr.StatusCode, err)
		}
	}

	return fmt.Errorf("claude: %w: %w", domain.ErrLLMUnavailable, err)
}

func (c *Client) observe(err error, d time.Duration) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRateLimited):
		status = "rate_limited"
	case errors.Is(err, domain.ErrLLMUnavailable):
		status = "unavailable"
	default:
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues("anthropic", c.collaborator, status).Inc()
	metrics.LLMRequestDuration.WithLabelValues("anthropic", c.collaborator).Observe(d.Seconds())
}
