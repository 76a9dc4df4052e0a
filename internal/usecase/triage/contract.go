package triage

import (
	"context"

	"github.com/kailas-cloud/triage/internal/domain/match"
	"github.com/kailas-cloud/triage/internal/domain/ticket"
)

// Extractor derives structured fields from a description. It never fails.
type Extractor interface {
	Extract(ctx context.Context, description string) ticket.Fields
}

// Matcher ranks KB entries against a description.
type Matcher interface {
	Search(ctx context.Context, description string, topK int) ([]match.Result, error)
}

// Suggester proposes a next action for new issues.
type Suggester interface {
	Suggest(ctx context.Context, description string) (string, error)
}
