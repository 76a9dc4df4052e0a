package kbmatch

import (
	"context"
	"errors"
	"maps"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/kb"
)

var errProvider = errors.New("provider down")

// mockEmbedder returns vectors by exact text; unknown texts and texts in fail error out.
type mockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    map[string]bool
	tokens  int
	calls   map[string]int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{
		vectors: map[string][]float32{},
		fail:    map[string]bool{},
		calls:   map[string]int{},
	}
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[text]++
	if m.fail[text] {
		return domain.EmbeddingResult{}, errProvider
	}
	vec, ok := m.vectors[text]
	if !ok {
		return domain.EmbeddingResult{}, errProvider
	}
	return domain.EmbeddingResult{Embedding: vec, PromptTokens: m.tokens, TotalTokens: m.tokens}, nil
}

func (m *mockEmbedder) callsFor(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[text]
}

func (m *mockEmbedder) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

type mockStore struct {
	mu      sync.Mutex
	loaded  map[string][]float32
	loadErr error
	saveErr error
	saves   []map[string][]float32
	loads   int
}

func (m *mockStore) Load(_ context.Context) (map[string][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return map[string][]float32{}, m.loadErr
	}
	if m.loaded == nil {
		return map[string][]float32{}, nil
	}
	return maps.Clone(m.loaded), nil
}

func (m *mockStore) Save(_ context.Context, vectors map[string][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, maps.Clone(vectors))
	return m.saveErr
}

func (m *mockStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func mustEntry(t *testing.T, id, title string, symptoms []string, action string) kb.Entry {
	t.Helper()
	e, err := kb.New(id, title, symptoms, action)
	if err != nil {
		t.Fatalf("kb.New(%s): %v", id, err)
	}
	return e
}

// testCatalog has three entries: checkout (kb1), password reset (kb2), slow pages (kb3).
func testCatalog(t *testing.T) *kb.Catalog {
	t.Helper()
	cat, err := kb.NewCatalog([]kb.Entry{
		mustEntry(t, "kb1", "Checkout failures", []string{"500", "payment", "checkout"}, "Retry payment gateway"),
		mustEntry(t, "kb2", "Password reset", []string{"password", "reset", "email"}, "Resend reset link"),
		mustEntry(t, "kb3", "Slow pages", []string{"slow", "loading"}, "Check CDN"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func newTestMatcher(t *testing.T, emb Embedder, store VectorStore) *Matcher {
	t.Helper()
	cache := NewCache(store, 0, nil, zap.NewNop())
	return New(testCatalog(t), cache, emb, zap.NewNop())
}
