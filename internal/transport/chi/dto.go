package chi

import (
	"github.com/kailas-cloud/triage/internal/domain/ticket"
	healthuc "github.com/kailas-cloud/triage/internal/usecase/health"
)

// Error codes returned in ErrorResponse.Code.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeRequestTooLarge  = "request_too_large"
	codeRateLimited      = "rate_limited"
	codeInternalError    = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TriageRequest is the POST /triage body.
type TriageRequest struct {
	Description *string `json:"description"`
}

// KBMatch is a single ranked KB entry in the response.
type KBMatch struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Score             float64 `json:"score"`
	RecommendedAction string  `json:"recommended_action"`
	Scoring           string  `json:"scoring"`
}

// TriageResponse is the POST /triage answer.
type TriageResponse struct {
	Summary    string    `json:"summary"`
	Category   string    `json:"category"`
	Severity   string    `json:"severity"`
	MatchType  string    `json:"match_type"`
	KBMatches  []KBMatch `json:"kb_matches"`
	NextAction string    `json:"next_action"`
	Notes      *string   `json:"notes"`
}

// HealthResponse is the GET /health answer.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Scoring   string            `json:"scoring"`
	LLM       string            `json:"llm"`
	KBEntries int               `json:"kb_entries"`
}

func triageToResponse(res *ticket.Result) TriageResponse {
	matches := make([]KBMatch, len(res.Matches))
	for i := range res.Matches {
		m := &res.Matches[i]
		matches[i] = KBMatch{
			ID:                m.ID(),
			Title:             m.Title(),
			Score:             m.Score(),
			RecommendedAction: m.RecommendedAction(),
			Scoring:           string(m.Mode()),
		}
	}
	return TriageResponse{
		Summary:    res.Summary,
		Category:   res.Category,
		Severity:   res.Severity,
		MatchType:  string(res.MatchType),
		KBMatches:  matches,
		NextAction: res.NextAction,
		Notes:      res.Notes,
	}
}

func healthToResponse(r *healthuc.Report) HealthResponse {
	checks := make(map[string]string, len(r.Checks))
	for k, v := range r.Checks {
		checks[k] = string(v)
	}
	return HealthResponse{
		Status:    string(r.Status),
		Checks:    checks,
		Scoring:   r.Scoring,
		LLM:       r.LLM,
		KBEntries: r.KBEntries,
	}
}
