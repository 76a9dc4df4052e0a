// Package similarity scores a ticket description against knowledge base entries.
package similarity

import (
	"math"
	"strings"
)

// scorePrecision is the number of decimals kept in published scores.
const scorePrecision = 1e4

// Cosine returns dot(a,b)/(|a|*|b|). The dot product runs over the common prefix
// while each norm covers its full vector, so trailing components of the longer
// vector lower the score. Returns 0 when either vector is empty or has zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var dot float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
	}

	normA, normB := norm(a), norm(b)
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (normA * normB)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// KeywordScore is the fraction of symptom tokens present in the description.
// Tokens are lowercased whitespace-separated words; punctuation is kept as-is.
// Returns 0 when the symptoms carry no tokens.
func KeywordScore(description string, symptoms []string) float64 {
	symptomTokens := make(map[string]struct{})
	for _, s := range symptoms {
		for _, tok := range strings.Fields(strings.ToLower(s)) {
			symptomTokens[tok] = struct{}{}
		}
	}
	if len(symptomTokens) == 0 {
		return 0
	}

	descTokens := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(description)) {
		descTokens[tok] = struct{}{}
	}

	overlap := 0
	for tok := range symptomTokens {
		if _, ok := descTokens[tok]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(symptomTokens))
}

// Round rounds a score to 4 decimal places.
func Round(score float64) float64 {
	return math.Round(score*scorePrecision) / scorePrecision
}
