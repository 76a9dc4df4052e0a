package domain

import "context"

// CompletionRequest is a single-turn prompt for a language model.
type CompletionRequest struct {
	Prompt      string
	JSON        bool // ask the provider for a JSON object response
	Temperature float32
	MaxTokens   int
}

// Completer generates text from a prompt.
// Implementations classify transient failures as ErrRateLimited or ErrLLMUnavailable.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
