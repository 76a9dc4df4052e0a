// Package triage merges extracted ticket fields with KB matches into a triage decision.
package triage

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/match"
	"github.com/kailas-cloud/triage/internal/domain/ticket"
	"github.com/kailas-cloud/triage/internal/logger"
)

// Defaults applied when the extractor leaves a field empty.
const (
	DefaultThreshold  = 0.6
	DefaultCategory   = "Other"
	DefaultSeverity   = "Low"
	summaryMaxRunes   = 200
	investigateAction = "Investigate further."
	escalateAction    = "Collect reproduction steps, environment details, and screenshots; escalate to engineering."
)

// Metrics groups the collectors the service reports to. Nil fields are skipped.
type Metrics struct {
	Decisions *prometheus.CounterVec // label: match_type
	BestScore prometheus.Observer
}

// Service is the triage orchestrator.
type Service struct {
	extractor Extractor
	matcher   Matcher
	suggester Suggester
	threshold float64
	topK      int
	metrics   Metrics
}

// New creates the orchestrator. A negative threshold selects DefaultThreshold and 0 is
// honored; a non-positive topK lets the matcher pick its default.
func New(
	extractor Extractor, matcher Matcher, suggester Suggester,
	threshold float64, topK int, m Metrics,
) *Service {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Service{
		extractor: extractor,
		matcher:   matcher,
		suggester: suggester,
		threshold: threshold,
		topK:      topK,
		metrics:   m,
	}
}

// Threshold returns the known-issue score cutoff.
func (s *Service) Threshold() float64 { return s.threshold }

// Triage classifies a description. The only error is domain.ErrEmptyDescription;
// every collaborator failure degrades to a default or fallback value.
func (s *Service) Triage(ctx context.Context, description string) (ticket.Result, error) {
	if strings.TrimSpace(description) == "" {
		return ticket.Result{}, domain.ErrEmptyDescription
	}
	log := logger.FromContext(ctx)

	fields := s.extractor.Extract(ctx, description)

	matches, err := s.matcher.Search(ctx, description, s.topK)
	if err != nil {
		log.Warn("KB search failed, treating as no matches", zap.Error(err))
		matches = nil
	}

	res := ticket.Result{
		Summary:  valueOr(fields.Summary, ticket.Truncate(description, summaryMaxRunes)),
		Category: valueOr(fields.Category, DefaultCategory),
		Severity: valueOr(fields.Severity, DefaultSeverity),
		Notes:    fields.Notes,
	}

	best := 0.0
	if len(matches) > 0 {
		best = matches[0].Score()
	}

	if len(matches) > 0 && best >= s.threshold {
		res.MatchType = ticket.KnownIssue
		res.Matches = matches
		res.NextAction = matches[0].RecommendedAction()
		if strings.TrimSpace(res.NextAction) == "" {
			res.NextAction = investigateAction
		}
	} else {
		res.MatchType = ticket.NewIssue
		res.Matches = []match.Result{}
		res.NextAction = s.suggest(ctx, log, description)
	}

	s.observe(res.MatchType, best, len(matches) > 0)
	log.Info("Ticket triaged",
		zap.String("match_type", string(res.MatchType)),
		zap.Float64("best_score", best),
		zap.Int("candidates", len(matches)),
		zap.String("fields_source", string(fields.Source)),
	)

	return res, nil
}

func (s *Service) suggest(ctx context.Context, log *zap.Logger, description string) string {
	action, err := s.suggester.Suggest(ctx, description)
	if err != nil || strings.TrimSpace(action) == "" {
		log.Warn("Next-action suggester unavailable, using escalation fallback", zap.Error(err))
		return escalateAction
	}
	return action
}

func (s *Service) observe(mt ticket.MatchType, best float64, hasMatches bool) {
	if s.metrics.Decisions != nil {
		s.metrics.Decisions.WithLabelValues(string(mt)).Inc()
	}
	if s.metrics.BestScore != nil && hasMatches {
		s.metrics.BestScore.Observe(best)
	}
}

func valueOr(p *string, def string) string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return def
	}
	return *p
}
