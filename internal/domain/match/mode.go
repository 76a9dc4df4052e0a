package match

// Mode is the scoring strategy that produced a match score.
// Scores from different modes are not directly comparable.
type Mode string

// Scoring mode constants.
const (
	// Cosine is embedding cosine similarity.
	Cosine  Mode = "cosine"
	Keyword Mode = "keyword"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Cosine || m == Keyword
}
