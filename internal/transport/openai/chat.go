package openai

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/metrics"
)

// DefaultChatModel is used when the config leaves the model empty.
const DefaultChatModel = "gpt-4.1-mini"

// ChatConfig holds chat completion settings.
type ChatConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Collaborator string // metrics label: extractor, suggester
	Logger       *zap.Logger
}

// Chat implements domain.Completer over the chat completions API.
type Chat struct {
	client       *openai.Client
	model        string
	collaborator string
	logger       *zap.Logger
}

// NewChat creates a chat completer.
func NewChat(cfg *ChatConfig) *Chat {
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	return &Chat{
		client:       newClient(cfg.APIKey, cfg.BaseURL),
		model:        model,
		collaborator: cfg.Collaborator,
		logger:       cfg.Logger,
	}
}

// Complete sends a single user message and returns the first choice's content.
func (c *Chat) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	temp := req.Temperature
	if temp == 0 {
		// zero is dropped by omitempty and the API would apply its default of 1
		temp = math.SmallestNonzeroFloat32
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature:         temp,
		MaxCompletionTokens: req.MaxTokens,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	duration := time.Since(start)

	if err != nil {
		err = classifyChatError(err)
		c.observe(err, duration)
		return "", err
	}
	if len(resp.Choices) == 0 {
		err = fmt.Errorf("no completion choices: %w", domain.ErrMalformedResponse)
		c.observe(err, duration)
		return "", err
	}

	c.observe(nil, duration)
	c.logger.Debug("Chat completion finished",
		zap.String("model", c.model),
		zap.String("collaborator", c.collaborator),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Chat) observe(err error, d time.Duration) {
	metrics.LLMRequestsTotal.WithLabelValues("openai", c.collaborator, statusLabel(err)).Inc()
	metrics.LLMRequestDuration.WithLabelValues("openai", c.collaborator).Observe(d.Seconds())
}
