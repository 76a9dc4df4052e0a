// Package ticket holds the structured view of a support ticket and the triage outcome.
package ticket

import "github.com/kailas-cloud/triage/internal/domain/match"

// MatchType is the triage classification.
type MatchType string

// Match types.
const (
	KnownIssue MatchType = "known_issue"
	NewIssue   MatchType = "new_issue"
)

// Source tells where extracted fields came from.
type Source string

// Field sources.
const (
	SourceModel     Source = "model"
	SourceHeuristic Source = "heuristic"
)

// Fields is the structured extraction output. Every field is optional;
// defaults are applied by the triage service, not by extractors.
type Fields struct {
	Summary  *string
	Category *string
	Severity *string
	Notes    *string
	Source   Source
}

// Result is the triage decision returned to the caller.
type Result struct {
	Summary    string
	Category   string
	Severity   string
	MatchType  MatchType
	Matches    []match.Result // non-empty only for KnownIssue
	NextAction string
	Notes      *string
}

// Known reports whether the ticket matched a KB entry.
func (r *Result) Known() bool { return r.MatchType == KnownIssue }

// Ptr returns a pointer to s, or nil when s is empty.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Truncate returns the first n runes of s.
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
