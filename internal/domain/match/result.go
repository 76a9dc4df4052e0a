package match

import "sort"

// Result is a single knowledge base hit for a description.
type Result struct {
	id                string
	title             string
	score             float64
	recommendedAction string
	mode              Mode
}

// New creates a match result.
func New(id, title string, score float64, recommendedAction string, mode Mode) Result {
	return Result{
		id: id, title: title, score: score,
		recommendedAction: recommendedAction, mode: mode,
	}
}

// ID returns the KB entry identifier.
func (r *Result) ID() string { return r.id }

// Title returns the KB entry title.
func (r *Result) Title() string { return r.title }

// Score returns the rounded relevance score.
func (r *Result) Score() float64 { return r.score }

// RecommendedAction returns the KB entry remediation.
func (r *Result) RecommendedAction() string { return r.recommendedAction }

// Mode returns the scoring strategy used for this result.
func (r *Result) Mode() Mode { return r.mode }

// Rank sorts results by score descending, keeping input order for ties,
// and truncates to topK.
func Rank(results []Result, topK int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
