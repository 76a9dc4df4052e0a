package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// --- Mocks ---

type mockCachePinger struct {
	err error
}

func (m *mockCachePinger) Ping(_ context.Context) error { return m.err }

type mockEmbeddingChecker struct {
	err error
}

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockCachePinger{}, &mockEmbeddingChecker{}, Options{LLMProvider: "openai", KBEntries: 6})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["cache"] != CheckOK {
		t.Errorf("expected cache %q, got %q", CheckOK, r.Checks["cache"])
	}
	if r.Checks["embedding"] != CheckOK {
		t.Errorf("expected embedding %q, got %q", CheckOK, r.Checks["embedding"])
	}
	if r.Scoring != ScoringEmbedding || r.LLM != "openai" || r.KBEntries != 6 {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestCheck_CacheError(t *testing.T) {
	svc := New(&mockCachePinger{err: errors.New("conn refused")}, &mockEmbeddingChecker{}, Options{})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["cache"] != CheckError {
		t.Errorf("expected cache %q, got %q", CheckError, r.Checks["cache"])
	}
	if r.Checks["embedding"] != CheckOK {
		t.Errorf("expected embedding %q, got %q", CheckOK, r.Checks["embedding"])
	}
}

func TestCheck_EmbeddingError(t *testing.T) {
	svc := New(nil, &mockEmbeddingChecker{err: errors.New("timeout")}, Options{})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["embedding"] != CheckError {
		t.Errorf("expected embedding %q, got %q", CheckError, r.Checks["embedding"])
	}
	if _, ok := r.Checks["cache"]; ok {
		t.Error("file-backed cache must not be reported")
	}
}

func TestCheck_KeywordOnly(t *testing.T) {
	svc := New(nil, nil, Options{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if len(r.Checks) != 0 {
		t.Errorf("expected no checks, got %v", r.Checks)
	}
	if r.Scoring != ScoringKeyword {
		t.Errorf("expected keyword scoring, got %q", r.Scoring)
	}
	if r.LLM != "none" {
		t.Errorf("expected llm none, got %q", r.LLM)
	}
}

// barrierCheck fails unless its peer check runs at the same time.
type barrierCheck struct {
	wg *sync.WaitGroup
}

func (b barrierCheck) wait() error {
	b.wg.Done()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(time.Second):
		return errors.New("peer check never started")
	}
}

func (b barrierCheck) Ping(context.Context) error        { return b.wait() }
func (b barrierCheck) HealthCheck(context.Context) error { return b.wait() }

func TestCheck_ComponentsCheckedConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	checker := barrierCheck{wg: &wg}

	r := New(checker, checker, Options{}).Check(context.Background())
	if r.Status != Healthy {
		t.Fatalf("expected concurrent checks to pass, got %+v", r)
	}
}
