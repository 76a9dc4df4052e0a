package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine_Symmetric(t *testing.T) {
	pairs := [][2][]float32{
		{{1, 2, 3}, {4, 5, 6}},
		{{0.5, -1}, {2, 0.25}},
		{{1, 0, 0}, {0, 1, 0}},
		{{-3, 4}, {3, -4}},
	}
	for _, p := range pairs {
		assert.Equal(t, Cosine(p[0], p[1]), Cosine(p[1], p[0]))
	}
}

func TestCosine_SelfIsOne(t *testing.T) {
	for _, v := range [][]float32{{1}, {3, 4}, {0.1, 0.2, 0.3, 0.4}, {-2, 7, 0}} {
		assert.InDelta(t, 1.0, Cosine(v, v), 1e-12)
	}
}

func TestCosine_Degenerate(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float32{1, 2, 3}, []float32{0, 0, 0}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, Cosine(nil, []float32{1}))
	assert.Equal(t, 0.0, Cosine([]float32{}, []float32{}))
}

func TestCosine_KnownValues(t *testing.T) {
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-12)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 2}, []float32{-1, -2}), 1e-12)
	assert.InDelta(t, 0.9746, Round(Cosine([]float32{1, 2, 3}, []float32{4, 5, 6})), 1e-9)
}

func TestCosine_LengthMismatchUsesFullNorms(t *testing.T) {
	// dot over {1,2}; |b| includes the trailing 99
	assert.InDelta(t, 0.0226, Round(Cosine([]float32{1, 2}, []float32{1, 2, 99})), 1e-9)
	assert.Equal(t, Cosine([]float32{1, 2}, []float32{1, 2, 99}), Cosine([]float32{1, 2, 99}, []float32{1, 2}))
	// zero padding does not change the score
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{1, 2, 0}), 1e-12)
}

func TestKeywordScore_EmptySymptoms(t *testing.T) {
	assert.Equal(t, 0.0, KeywordScore("anything at all", nil))
	assert.Equal(t, 0.0, KeywordScore("anything at all", []string{"", "   "}))
}

func TestKeywordScore_ExactTokens(t *testing.T) {
	assert.Equal(t, 1.0, KeywordScore("500 payment checkout", []string{"500", "payment", "checkout"}))
}

func TestKeywordScore_CaseInsensitive(t *testing.T) {
	assert.Equal(t, 1.0, KeywordScore("CHECKOUT 500 Payment error", []string{"500", "payment", "checkout"}))
}

func TestKeywordScore_Partial(t *testing.T) {
	// symptom tokens: {login, fails, password, reset} -> 2 of 4 present
	score := KeywordScore("password reset link broken", []string{"login fails", "password reset"})
	assert.Equal(t, 0.5, score)
}

func TestKeywordScore_NoPunctuationStripping(t *testing.T) {
	assert.Equal(t, 0.0, KeywordScore("error.", []string{"error"}))
}

func TestKeywordScore_DuplicateTokensCountOnce(t *testing.T) {
	assert.Equal(t, 1.0, KeywordScore("timeout", []string{"timeout", "Timeout timeout"}))
}

func TestRound(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.123456, 0.1235},
		{0.12344, 0.1234},
		{1, 1},
		{0, 0},
		{2.0 / 3.0, 0.6667},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Round(tc.in))
	}
}
