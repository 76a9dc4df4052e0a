package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/triage/internal/domain"
)

// apiStatus returns the HTTP status and message of an API error, if any.
func apiStatus(err error) (int, string, bool) {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return reqErr.HTTPStatusCode, detail, true
		}
		return reqErr.HTTPStatusCode, string(reqErr.Body), true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message, true
	}
	return 0, "", false
}

// transientClass maps a status to a retryable sentinel, or nil if retrying is pointless.
func transientClass(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case status >= http.StatusInternalServerError, status == http.StatusRequestTimeout:
		return domain.ErrLLMUnavailable
	default:
		return nil
	}
}

// parseAPIError wraps an embeddings failure with domain.ErrEmbeddingProviderError
// and, for rate limits and 5xx, the matching transient sentinel.
func parseAPIError(err error) error {
	wrap := domain.ErrEmbeddingProviderError

	status, msg, ok := apiStatus(err)
	if !ok {
		return fmt.Errorf("embedding request failed: %w: %w", wrap, err)
	}
	if class := transientClass(status); class != nil {
		return fmt.Errorf("embedding API error %d: %s: %w: %w", status, msg, wrap, class)
	}
	return fmt.Errorf("embedding API error %d: %s: %w", status, msg, wrap)
}

// classifyChatError maps a chat completion failure onto the domain taxonomy.
// Network errors and deadlines count as unavailability.
func classifyChatError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("chat completion: %w", err)
	}

	status, msg, ok := apiStatus(err)
	if !ok {
		return fmt.Errorf("chat completion: %w: %w", domain.ErrLLMUnavailable, err)
	}
	if class := transientClass(status); class != nil {
		return fmt.Errorf("chat API error %d: %s: %w", status, msg, class)
	}
	return fmt.Errorf("chat API error %d: %s", status, msg)
}

// extractDetail extracts the "detail" field from a JSON error body (OpenAI-compatible gateways).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrLLMUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
