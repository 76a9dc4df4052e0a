// Package kbmatch ranks knowledge base entries against a ticket description.
package kbmatch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/kb"
	"github.com/kailas-cloud/triage/internal/domain/match"
	"github.com/kailas-cloud/triage/internal/domain/similarity"
)

// DefaultTopK is used when Search gets a non-positive topK.
const DefaultTopK = 3

// Matcher scores every KB entry by cosine similarity of embeddings when possible
// and by keyword overlap otherwise. The choice is made per entry.
type Matcher struct {
	catalog *kb.Catalog
	cache   *Cache
	embed   Embedder // nil = keyword-only mode
	logger  *zap.Logger
}

// New creates a matcher. Pass a nil embedder to run in keyword-only mode.
func New(catalog *kb.Catalog, cache *Cache, embed Embedder, logger *zap.Logger) *Matcher {
	return &Matcher{catalog: catalog, cache: cache, embed: embed, logger: logger}
}

// KeywordOnly reports whether the matcher has no embedding backend.
func (m *Matcher) KeywordOnly() bool { return m.embed == nil }

// Search returns up to topK matches sorted by score descending.
// Embedding failures degrade to keyword scoring; only context cancellation is an error.
func (m *Matcher) Search(ctx context.Context, description string, topK int) ([]match.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search kb: %w", err)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	desc := strings.TrimSpace(description)
	entries := m.catalog.Entries()

	var (
		vectors map[string][]float32
		descVec []float32
	)
	if m.embed != nil {
		vectors = m.cache.EnsurePopulated(ctx, entries, m.embed)
		descVec = m.embedDescription(ctx, desc)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search kb: %w", err)
	}

	results := make([]match.Result, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		var (
			score float64
			mode  match.Mode
		)
		if kbVec := vectors[e.ID()]; len(descVec) > 0 && len(kbVec) > 0 {
			score, mode = similarity.Cosine(descVec, kbVec), match.Cosine
		} else {
			score, mode = similarity.KeywordScore(desc, e.Symptoms()), match.Keyword
		}
		results = append(results, match.New(
			e.ID(), e.Title(), similarity.Round(score), e.RecommendedAction(), mode,
		))
	}

	return match.Rank(results, topK), nil
}

func (m *Matcher) embedDescription(ctx context.Context, desc string) []float32 {
	res, err := m.embed.Embed(ctx, desc)
	if err != nil || len(res.Embedding) == 0 {
		m.logger.Warn("Description embedding failed, keyword scoring for all entries", zap.Error(err))
		return nil
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)
	return res.Embedding
}
