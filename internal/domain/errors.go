package domain

import "errors"

var (
	// ErrEmptyDescription signals a blank ticket description.
	ErrEmptyDescription = errors.New("description is required")
	// ErrRateLimited signals a rate limit hit on an external provider.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLLMUnavailable signals a transient language model failure (timeout, 5xx).
	ErrLLMUnavailable = errors.New("language model unavailable")
	// ErrMalformedResponse signals model output that could not be parsed.
	ErrMalformedResponse = errors.New("malformed model response")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrLLMUnavailable)
}
