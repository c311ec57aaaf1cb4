package match

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findOne(t *testing.T, text, secret string) Match {
	t.Helper()
	matches := NewFinder().Find(text, []string{secret}, nil)
	require.Len(t, matches, 1)
	return matches[0]
}

func TestFind_ExactMatch(t *testing.T) {
	m := findOne(t, "my password is hunter2 ok", "hunter2")

	assert.Equal(t, 15, m.Start)
	assert.Equal(t, 22, m.End)
	assert.Equal(t, 1.0, m.Similarity)
	assert.Equal(t, LiveText, m.HistoryIndex)
}

func TestFind_CaseInsensitive(t *testing.T) {
	m := findOne(t, "typed HUNTER2 here", "hunter2")

	assert.Equal(t, "HUNTER2", string([]rune("typed HUNTER2 here")[m.Start:m.End]))
	assert.Equal(t, 0.95, m.Similarity)
}

func TestFind_WordBoundaryAnnotation(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		strategy Strategy
	}{
		{"standalone", "the hunter2 token", StrategyWord},
		{"embedded", "xhunter2x", StrategyExact},
		{"punctuation bounded", "(hunter2)", StrategyWord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := findOne(t, tt.text, "hunter2")
			assert.Equal(t, tt.strategy, m.Strategy)
		})
	}
}

func TestFind_ConsecutiveRepetitionsStayDistinct(t *testing.T) {
	matches := NewFinder().Find("secret123secret123secret123", []string{"secret123"}, nil)

	require.Len(t, matches, 3)
	for i, m := range matches {
		assert.Equal(t, i*9, m.Start)
		assert.Equal(t, i*9+9, m.End)
	}
}

func TestFind_AdjacentDifferentSecrets(t *testing.T) {
	matches := NewFinder().Find("secret123secret456", []string{"secret123", "secret456"}, nil)

	require.Len(t, matches, 2)
	assert.Equal(t, "secret123", matches[0].Secret)
	assert.Equal(t, "secret456", matches[1].Secret)
}

func TestFind_FuzzyTypo(t *testing.T) {
	// One substitution in a 9-rune secret: similarity 8/9 ≈ 0.89.
	m := findOne(t, "the token secrXt123 leaked", "secret123")

	assert.Equal(t, StrategyFuzzy, m.Strategy)
	assert.GreaterOrEqual(t, m.Similarity, 0.75)
	assert.LessOrEqual(t, m.Similarity, 0.95)
}

func TestFind_FuzzyDroppedCharacter(t *testing.T) {
	m := findOne(t, "it was secet123 there", "secret123")

	assert.Equal(t, StrategyFuzzy, m.Strategy)
	assert.GreaterOrEqual(t, m.Similarity, 0.75)
}

func TestFind_ShortSecretNeverFuzzy(t *testing.T) {
	// "pass" is below the fuzzy length floor; a typo must not match.
	matches := NewFinder().Find("the paXs here", []string{"pass"}, nil)
	assert.Empty(t, matches)
}

func TestFind_NoFalsePositives(t *testing.T) {
	matches := NewFinder().Find("completely unrelated text", []string{"secret123"}, nil)
	assert.Empty(t, matches)
}

func TestFind_SpansNeverOverlap(t *testing.T) {
	secrets := []string{"secret123", "ecret12", "ret123xyz"}
	matches := NewFinder().Find("leak secret123xyz end", secrets, nil)

	require.NotEmpty(t, matches)
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			a, b := matches[i], matches[j]
			assert.False(t, a.Start < b.End && a.End > b.Start,
				"spans [%d,%d) and [%d,%d) overlap", a.Start, a.End, b.Start, b.End)
		}
	}
}

func TestFind_WhitespaceTrimmedFromSpan(t *testing.T) {
	// A fuzzy window can capture a neighboring space; it must be trimmed.
	text := "aa secret123 bb"
	matches := NewFinder().Find(text, []string{"secret123"}, nil)

	require.NotEmpty(t, matches)
	for _, m := range matches {
		span := string([]rune(text)[m.Start:m.End])
		assert.Equal(t, strings.TrimSpace(span), span)
	}
}

func TestFind_HistoryFallback(t *testing.T) {
	history := []string{"s", "se", "sec", "secret123", "secret12", "sec", ""}
	matches := NewFinder().Find("", []string{"secret123"}, history)

	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, StrategyDeleted, m.Strategy)
	assert.Equal(t, 3, m.HistoryIndex)
	assert.Equal(t, 0, m.HistStart)
	assert.Equal(t, 9, m.HistEnd)
	assert.Equal(t, 0, m.Start)
	assert.Equal(t, 0, m.End)
}

func TestFind_LiveMatchCoexistsWithDeletedCopy(t *testing.T) {
	// The secret was typed, fully deleted, then retyped and kept. The
	// deleted copy gets its own anchor next to the live match; the era
	// still present in the final state does not.
	history := []string{"secret123", "", "secret123"}
	matches := NewFinder().Find("secret123", []string{"secret123"}, history)

	require.Len(t, matches, 2)

	anchor, live := matches[0], matches[1]
	assert.Equal(t, StrategyDeleted, anchor.Strategy)
	assert.Equal(t, 0, anchor.HistoryIndex)
	assert.Equal(t, 0, anchor.HistStart)
	assert.Equal(t, 9, anchor.HistEnd)

	assert.Equal(t, StrategyWord, live.Strategy)
	assert.Equal(t, 1.0, live.Similarity)
	assert.Equal(t, LiveText, live.HistoryIndex)
}

func TestFind_AnchorPerDeletedEra(t *testing.T) {
	// Two copies typed and deleted in one pass yield two anchors, one
	// per era, each pointing at its own snapshot.
	history := []string{"hunter2", "", "HUNTER2", ""}
	matches := NewFinder().Find("", []string{"hunter2"}, history)

	require.Len(t, matches, 2)
	assert.Equal(t, 0, matches[0].HistoryIndex)
	assert.Equal(t, 1.0, matches[0].Similarity)
	assert.Equal(t, 2, matches[1].HistoryIndex)
	assert.Equal(t, 0.95, matches[1].Similarity)
	for _, m := range matches {
		assert.Equal(t, StrategyDeleted, m.Strategy)
		assert.Zero(t, m.Start)
		assert.Zero(t, m.End)
	}
}

func TestFind_AdjacencyJoinKeepsStrongerStrategy(t *testing.T) {
	// The trailing space in the secret is trimmed from each hit, leaving
	// two short fragments the adjacency pass joins. The joined match
	// keeps the fragments' exact strategy.
	matches := NewFinder().Find("hunter2 hunter2 done", []string{"hunter2 "}, nil)

	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].Start)
	assert.Equal(t, 15, matches[0].End)
	assert.Equal(t, StrategyExact, matches[0].Strategy)
	assert.Equal(t, 1.0, matches[0].Similarity)
}

func TestFind_MultipleSecrets(t *testing.T) {
	text := "user hunter2 and key abc123xyz end"
	matches := NewFinder().Find(text, []string{"hunter2", "abc123xyz"}, nil)

	require.Len(t, matches, 2)
	assert.Equal(t, "hunter2", matches[0].Secret)
	assert.Equal(t, "abc123xyz", matches[1].Secret)
	assert.Less(t, matches[0].Start, matches[1].Start)
}

func TestFind_EmptyInputs(t *testing.T) {
	f := NewFinder()

	assert.Empty(t, f.Find("", []string{"secret123"}, nil))
	assert.Empty(t, f.Find("some text", nil, nil))
	assert.Empty(t, f.Find("some text", []string{""}, nil))
}

func TestFind_LongTextPreFilter(t *testing.T) {
	// A secret buried deep in filler must survive the chunked pre-filter.
	filler := strings.Repeat("the quick brown fox jumps over the lazy dog ", 50)
	text := filler + "token secrXt123 done"

	matches := NewFinder().Find(text, []string{"secret123"}, nil)
	require.Len(t, matches, 1)
	assert.Equal(t, StrategyFuzzy, matches[0].Strategy)
}

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abc", "abc", 1.0},
		{"abc", "abd", 2.0 / 3.0},
		{"abc", "", 0.0},
		{"", "", 1.0},
	}

	for _, tt := range tests {
		got := Ratio([]rune(tt.a), []rune(tt.b))
		assert.InDelta(t, tt.want, got, 1e-9, "Ratio(%q, %q)", tt.a, tt.b)
	}
}
