package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure; triage still answers using fallbacks.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Scoring modes reported by the health endpoint.
const (
	ScoringEmbedding = "embedding"
	ScoringKeyword   = "keyword"
)

const checkTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status    Status
	Checks    map[string]CheckResult
	Scoring   string // embedding or keyword
	LLM       string // provider name, or "none"
	KBEntries int
}

// Options describes the running configuration for the report.
type Options struct {
	LLMProvider string // empty = none
	KBEntries   int
}

// Service coordinates health checks.
type Service struct {
	cache     CachePinger
	embedding EmbeddingChecker
	opts      Options
}

// New creates a Service. cache is nil for the file backend; embedding is nil in keyword-only mode.
func New(cache CachePinger, embedding EmbeddingChecker, opts Options) *Service {
	return &Service{cache: cache, embedding: embedding, opts: opts}
}

// Check pings all configured components concurrently under one shared deadline.
func (s *Service) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var cacheErr, embeddingErr error
	g, gctx := errgroup.WithContext(ctx)
	if s.cache != nil {
		g.Go(func() error {
			cacheErr = s.cache.Ping(gctx)
			return nil
		})
	}
	if s.embedding != nil {
		g.Go(func() error {
			embeddingErr = s.embedding.HealthCheck(gctx)
			return nil
		})
	}
	_ = g.Wait() // checks report through their own error slots

	checks := make(map[string]CheckResult)
	if s.cache != nil {
		checks["cache"] = result(cacheErr)
	}
	scoring := ScoringKeyword
	if s.embedding != nil {
		scoring = ScoringEmbedding
		checks["embedding"] = result(embeddingErr)
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	llm := s.opts.LLMProvider
	if llm == "" {
		llm = "none"
	}

	return Report{
		Status:    status,
		Checks:    checks,
		Scoring:   scoring,
		LLM:       llm,
		KBEntries: s.opts.KBEntries,
	}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
