package kbmatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/kb"
	"github.com/kailas-cloud/triage/internal/domain/match"
)

const (
	textKB1 = "Checkout failures. 500 payment checkout"
	textKB2 = "Password reset. password reset email"
	textKB3 = "Slow pages. slow loading"
)

func TestSearch_KeywordOnly_KnownIssueScenario(t *testing.T) {
	m := newTestMatcher(t, nil, nil)

	got, err := m.Search(context.Background(), "checkout 500 payment error", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].ID() != "kb1" || got[0].Score() != 1.0 {
		t.Fatalf("expected kb1 with score 1.0, got %s %v", got[0].ID(), got[0].Score())
	}
	if got[0].Mode() != match.Keyword {
		t.Errorf("expected keyword scoring, got %s", got[0].Mode())
	}
	if got[0].RecommendedAction() != "Retry payment gateway" {
		t.Errorf("unexpected action %q", got[0].RecommendedAction())
	}
	if !m.KeywordOnly() {
		t.Error("matcher without embedder must report keyword-only")
	}
}

func TestSearch_KeywordOnly_NoOverlap(t *testing.T) {
	m := newTestMatcher(t, nil, nil)

	got, err := m.Search(context.Background(), "my cat knocked over my monitor", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range got {
		if r.Score() != 0 {
			t.Errorf("expected 0 for %s, got %v", r.ID(), r.Score())
		}
	}
	// ties keep KB order
	if got[0].ID() != "kb1" || got[1].ID() != "kb2" || got[2].ID() != "kb3" {
		t.Errorf("tie order not preserved: %s %s %s", got[0].ID(), got[1].ID(), got[2].ID())
	}
}

func TestSearch_TopK(t *testing.T) {
	m := newTestMatcher(t, nil, nil)
	ctx := context.Background()

	got, err := m.Search(ctx, "password reset", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID() != "kb2" {
		t.Fatalf("expected only kb2, got %v", got)
	}

	got, err = m.Search(ctx, "password reset", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != DefaultTopK {
		t.Fatalf("topK<=0 must default to %d, got %d", DefaultTopK, len(got))
	}

	got, err = m.Search(ctx, "password reset", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("topK larger than KB must return all entries, got %d", len(got))
	}
}

func TestSearch_SortedDescending(t *testing.T) {
	m := newTestMatcher(t, nil, nil)

	got, err := m.Search(context.Background(), "slow checkout page loading", 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Score() < got[i].Score() {
			t.Fatalf("results not sorted: %v then %v", got[i-1].Score(), got[i].Score())
		}
	}
	if got[0].ID() != "kb3" {
		t.Fatalf("expected kb3 first, got %s", got[0].ID())
	}
}

func TestSearch_ScoresRounded(t *testing.T) {
	e := mustEntry(t, "kb1", "Three", []string{"a b c"}, "x")
	cat, err := kb.NewCatalog([]kb.Entry{e})
	if err != nil {
		t.Fatal(err)
	}
	m := New(cat, NewCache(nil, 0, nil, zap.NewNop()), nil, zap.NewNop())

	got, err := m.Search(context.Background(), "a", 3)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Score() != 0.3333 {
		t.Fatalf("expected 0.3333, got %v", got[0].Score())
	}
}

func TestSearch_EmbeddingMode(t *testing.T) {
	emb := newMockEmbedder()
	emb.vectors[textKB1] = []float32{1, 0, 0}
	emb.vectors[textKB2] = []float32{0, 1, 0}
	emb.vectors[textKB3] = []float32{0, 0, 1}
	emb.vectors["checkout is broken"] = []float32{1, 0.0001, 0}

	m := newTestMatcher(t, emb, nil)
	got, err := m.Search(context.Background(), "  checkout is broken  ", 3)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].ID() != "kb1" || got[0].Mode() != match.Cosine {
		t.Fatalf("expected kb1 by cosine, got %s (%s)", got[0].ID(), got[0].Mode())
	}
	if got[0].Score() != 1.0 {
		t.Errorf("expected rounded score 1.0, got %v", got[0].Score())
	}
	for _, r := range got {
		if r.Mode() != match.Cosine {
			t.Errorf("%s: expected cosine, got %s", r.ID(), r.Mode())
		}
	}
	if emb.callsFor("checkout is broken") != 1 {
		t.Error("description must be embedded trimmed, exactly once")
	}
}

func TestSearch_PerEntryKeywordFallback(t *testing.T) {
	emb := newMockEmbedder()
	emb.vectors[textKB1] = []float32{1, 0}
	emb.fail[textKB2] = true
	emb.vectors[textKB3] = []float32{0, 1}
	emb.vectors["password reset please"] = []float32{0.5, 0.5}

	m := newTestMatcher(t, emb, nil)
	got, err := m.Search(context.Background(), "password reset please", 3)
	if err != nil {
		t.Fatal(err)
	}

	byID := map[string]match.Result{}
	for _, r := range got {
		byID[r.ID()] = r
	}
	kb2 := byID["kb2"]
	if kb2.Mode() != match.Keyword {
		t.Fatalf("kb2 must fall back to keyword, got %s", kb2.Mode())
	}
	if kb2.Score() != 0.6667 {
		t.Errorf("expected keyword score 0.6667 for kb2, got %v", kb2.Score())
	}
	kb1 := byID["kb1"]
	if kb1.Mode() != match.Cosine {
		t.Errorf("kb1 must stay cosine, got %s", kb1.Mode())
	}
}

func TestSearch_DescriptionEmbeddingFails(t *testing.T) {
	emb := newMockEmbedder()
	emb.vectors[textKB1] = []float32{1, 0}
	emb.vectors[textKB2] = []float32{0, 1}
	emb.vectors[textKB3] = []float32{1, 1}
	emb.fail["checkout 500 payment error"] = true

	m := newTestMatcher(t, emb, nil)
	got, err := m.Search(context.Background(), "checkout 500 payment error", 3)
	if err != nil {
		t.Fatalf("embedding failure must not be an error: %v", err)
	}
	for _, r := range got {
		if r.Mode() != match.Keyword {
			t.Errorf("%s: expected keyword, got %s", r.ID(), r.Mode())
		}
	}
	if got[0].ID() != "kb1" || got[0].Score() != 1.0 {
		t.Fatalf("expected kb1=1.0, got %s=%v", got[0].ID(), got[0].Score())
	}
}

func TestSearch_ContextCanceled(t *testing.T) {
	m := newTestMatcher(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Search(ctx, "checkout", 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSearch_RecordsTokenUsage(t *testing.T) {
	emb := newMockEmbedder()
	emb.tokens = 5
	emb.vectors[textKB1] = []float32{1}
	emb.vectors[textKB2] = []float32{1}
	emb.vectors[textKB3] = []float32{1}
	emb.vectors["x"] = []float32{1}

	m := newTestMatcher(t, emb, nil)
	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := m.Search(ctx, "x", 3); err != nil {
		t.Fatal(err)
	}
	if usage.TotalTokens() != 20 {
		t.Errorf("expected 20 tokens (3 KB + 1 description), got %d", usage.TotalTokens())
	}
}

// --- cache behaviour through the matcher ---

func TestCache_PlaceholderNotRetriedInProcess(t *testing.T) {
	emb := newMockEmbedder()
	emb.vectors[textKB1] = []float32{1, 0}
	emb.fail[textKB2] = true
	emb.vectors[textKB3] = []float32{0, 1}
	emb.vectors["q"] = []float32{1, 1}
	store := &mockStore{}

	m := newTestMatcher(t, emb, store)
	ctx := context.Background()
	for range 3 {
		if _, err := m.Search(ctx, "q", 3); err != nil {
			t.Fatal(err)
		}
	}

	if n := emb.callsFor(textKB2); n != 1 {
		t.Errorf("failed entry retried: %d calls", n)
	}
	if n := emb.callsFor(textKB1); n != 1 {
		t.Errorf("cached entry re-embedded: %d calls", n)
	}
	if store.loads != 1 {
		t.Errorf("expected a single load, got %d", store.loads)
	}
	if store.saveCount() != 1 {
		t.Fatalf("expected exactly one save, got %d", store.saveCount())
	}
	saved := store.saves[0]
	if vec, ok := saved["kb2"]; !ok || len(vec) != 0 {
		t.Errorf("placeholder must be persisted as empty vector, got %v (present=%v)", vec, ok)
	}
	if len(saved["kb1"]) != 2 {
		t.Errorf("kb1 vector not persisted: %v", saved["kb1"])
	}
}

func TestCache_UsesPersistedVectors(t *testing.T) {
	emb := newMockEmbedder()
	emb.vectors["q"] = []float32{1, 0}
	store := &mockStore{loaded: map[string][]float32{
		"kb1": {1, 0},
		"kb2": {0, 1},
		"kb3": {0, 1},
	}}

	m := newTestMatcher(t, emb, store)
	got, err := m.Search(context.Background(), "q", 3)
	if err != nil {
		t.Fatal(err)
	}
	if emb.totalCalls() != 1 {
		t.Errorf("only the description should be embedded, got %d calls", emb.totalCalls())
	}
	if store.saveCount() != 0 {
		t.Errorf("nothing changed, expected no save, got %d", store.saveCount())
	}
	if got[0].ID() != "kb1" || got[0].Mode() != match.Cosine {
		t.Errorf("expected kb1 via cosine, got %s %s", got[0].ID(), got[0].Mode())
	}
}

func TestCache_PersistedPlaceholderRetriedOnce(t *testing.T) {
	emb := newMockEmbedder()
	emb.vectors[textKB2] = []float32{0, 1}
	emb.vectors["q"] = []float32{0, 1}
	store := &mockStore{loaded: map[string][]float32{
		"kb1": {1, 0},
		"kb2": {},
		"kb3": {1, 1},
	}}

	m := newTestMatcher(t, emb, store)
	ctx := context.Background()
	for range 2 {
		if _, err := m.Search(ctx, "q", 3); err != nil {
			t.Fatal(err)
		}
	}
	if n := emb.callsFor(textKB2); n != 1 {
		t.Fatalf("expected one retry of the persisted placeholder, got %d", n)
	}
	if store.saveCount() != 1 || len(store.saves[0]["kb2"]) != 2 {
		t.Fatalf("recovered vector not saved: %v", store.saves)
	}
}

func TestCache_CorruptStoreTreatedAsEmpty(t *testing.T) {
	emb := newMockEmbedder()
	emb.vectors[textKB1] = []float32{1}
	emb.vectors[textKB2] = []float32{1}
	emb.vectors[textKB3] = []float32{1}
	emb.vectors["q"] = []float32{1}
	store := &mockStore{loadErr: errors.New("unexpected end of JSON input")}

	m := newTestMatcher(t, emb, store)
	if _, err := m.Search(context.Background(), "q", 3); err != nil {
		t.Fatalf("corrupt cache must not fail search: %v", err)
	}
	if emb.totalCalls() != 4 {
		t.Errorf("expected all entries re-embedded, got %d calls", emb.totalCalls())
	}
}

func TestCache_SaveFailureSwallowed(t *testing.T) {
	emb := newMockEmbedder()
	emb.vectors[textKB1] = []float32{1}
	emb.vectors[textKB2] = []float32{1}
	emb.vectors[textKB3] = []float32{1}
	emb.vectors["q"] = []float32{1}
	store := &mockStore{saveErr: errors.New("disk full")}

	m := newTestMatcher(t, emb, store)
	got, err := m.Search(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("save failure must not fail search: %v", err)
	}
	if got[0].Mode() != match.Cosine {
		t.Errorf("in-memory vectors must still be used, got %s", got[0].Mode())
	}
}

func TestCache_ConcurrentSearchesEmbedOnce(t *testing.T) {
	emb := newMockEmbedder()
	emb.vectors[textKB1] = []float32{1, 0}
	emb.vectors[textKB2] = []float32{0, 1}
	emb.vectors[textKB3] = []float32{1, 1}
	emb.vectors["q"] = []float32{1, 0}
	store := &mockStore{}

	m := newTestMatcher(t, emb, store)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Search(context.Background(), "q", 3); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	for _, text := range []string{textKB1, textKB2, textKB3} {
		if n := emb.callsFor(text); n != 1 {
			t.Errorf("%q embedded %d times", text, n)
		}
	}
	if store.saveCount() != 1 {
		t.Errorf("expected one save, got %d", store.saveCount())
	}
}

func TestCache_Pacing(t *testing.T) {
	emb := newMockEmbedder()
	emb.vectors[textKB1] = []float32{1}
	emb.vectors[textKB2] = []float32{1}
	emb.vectors[textKB3] = []float32{1}

	c := NewCache(nil, 20*time.Millisecond, nil, zap.NewNop())
	start := time.Now()
	c.EnsurePopulated(context.Background(), testCatalog(t).Entries(), emb)
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected at least two pacing delays, took %v", elapsed)
	}
	if c.Len() != 3 {
		t.Errorf("expected 3 cached entries, got %d", c.Len())
	}
}

func TestCache_CanceledContextLeavesEntriesUntried(t *testing.T) {
	emb := newMockEmbedder()
	emb.vectors[textKB1] = []float32{1}
	emb.vectors[textKB2] = []float32{1}
	emb.vectors[textKB3] = []float32{1}

	c := NewCache(nil, 0, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.EnsurePopulated(ctx, testCatalog(t).Entries(), emb)
	if emb.totalCalls() != 0 {
		t.Fatalf("no embedding expected after cancellation, got %d", emb.totalCalls())
	}

	got := c.EnsurePopulated(context.Background(), testCatalog(t).Entries(), emb)
	if len(got["kb1"]) != 1 {
		t.Fatalf("entries must be embedded on the next call, got %v", got)
	}
}

func TestCache_LookupMetrics(t *testing.T) {
	emb := newMockEmbedder()
	emb.vectors[textKB1] = []float32{1}
	emb.fail[textKB2] = true
	emb.vectors[textKB3] = []float32{1}
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_lookups_total"}, []string{"result"})

	c := NewCache(nil, 0, lookups, zap.NewNop())
	entries := testCatalog(t).Entries()
	c.EnsurePopulated(context.Background(), entries, emb)
	c.EnsurePopulated(context.Background(), entries, emb)

	if got := testutil.ToFloat64(lookups.WithLabelValues("miss")); got != 3 {
		t.Errorf("miss = %v, want 3", got)
	}
	if got := testutil.ToFloat64(lookups.WithLabelValues("hit")); got != 2 {
		t.Errorf("hit = %v, want 2", got)
	}
	if got := testutil.ToFloat64(lookups.WithLabelValues("placeholder")); got != 1 {
		t.Errorf("placeholder = %v, want 1", got)
	}
}
