// Package match locates secret strings in reconstructed text.
//
// Finding is a pure function over its inputs. Several strategies run per
// secret in priority order: exact case-insensitive search, word-boundary
// annotation, and a fuzzy sliding window gated by a chunked pre-filter.
// Secrets that were typed and later deleted are recovered from the
// buffer-state history. Candidates are merged so the final list has
// pairwise-disjoint spans, favoring higher-confidence matches.
package match

import (
	"sort"
	"unicode"
)

// Strategy identifies how a match was found.
type Strategy string

const (
	StrategyExact   Strategy = "exact"
	StrategyWord    Strategy = "word_boundary"
	StrategyFuzzy   Strategy = "fuzzy"
	StrategyDeleted Strategy = "deleted"
)

// LiveText marks a match found in the final reconstructed text rather
// than in a historical buffer state.
const LiveText = -1

// Match is one located secret occurrence. Start and End are rune offsets
// into the searched text; deleted-source matches are zero-length anchors
// at position 0 carrying the snapshot coordinates instead.
type Match struct {
	Start      int
	End        int
	Secret     string
	Similarity float64
	Strategy   Strategy

	// HistoryIndex is the buffer snapshot the match was found in, or
	// LiveText for the final text.
	HistoryIndex int

	// HistStart and HistEnd locate the secret inside that snapshot.
	// Zero for live matches.
	HistStart int
	HistEnd   int
}

// overlaps reports whether the live spans intersect. Zero-length spans
// never overlap anything.
func (m Match) overlaps(o Match) bool {
	return m.Start < o.End && m.End > o.Start
}

// Finder holds matching thresholds. The zero value is not usable; call
// NewFinder.
type Finder struct {
	// MinSimilarity is the fuzzy acceptance threshold. Deliberately
	// permissive: borderline confidence over-redacts rather than leaks.
	MinSimilarity float64

	// CasePenalty is the similarity assigned to matches that are exact
	// only after case folding.
	CasePenalty float64

	// FuzzyMinLength is the minimum secret length eligible for fuzzy
	// matching.
	FuzzyMinLength int

	// ChunkSize is the coarse pre-filter chunk width in runes.
	ChunkSize int

	// ChunkThreshold is the coarse overlap ratio above which a chunk is
	// searched in detail.
	ChunkThreshold float64
}

// NewFinder returns a Finder with the standard thresholds.
func NewFinder() *Finder {
	return &Finder{
		MinSimilarity:  0.75,
		CasePenalty:    0.95,
		FuzzyMinLength: 6,
		ChunkSize:      64,
		ChunkThreshold: 0.7,
	}
}

// Find returns all non-overlapping secret matches in text, ordered by
// position. history, when present, is searched for secret copies that
// were typed and later deleted.
func (f *Finder) Find(text string, secrets []string, history []string) []Match {
	if len(secrets) == 0 || (text == "" && len(history) == 0) {
		return nil
	}

	textRunes := []rune(text)
	textLower := lowerRunes(text)

	var candidates []Match

	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		if exact := f.exactMatches(textRunes, textLower, secret); len(exact) > 0 {
			candidates = append(candidates, exact...)
			continue
		}
		candidates = append(candidates, f.fuzzyMatches(textRunes, textLower, secret)...)
	}

	accepted := f.merge(candidates)

	// Buffer-history fallback: every deleted copy of a secret still lives
	// in an earlier draft, even when another copy survives in the final
	// text. Anchor a zero-length match per deleted era so the orchestrator
	// can redact the underlying events; anchors whose events a live match
	// already covers are dropped there.
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		accepted = append(accepted, f.historyMatches(secret, history)...)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].Start != accepted[j].Start {
			return accepted[i].Start < accepted[j].Start
		}
		return accepted[i].End < accepted[j].End
	})
	return accepted
}

// exactMatches finds literal case-insensitive occurrences. The scan
// advances by the secret's full length after each hit, so a run of the
// secret repeated back-to-back yields one match per repetition; the
// merge pass keeps them individually addressable.
func (f *Finder) exactMatches(textRunes, textLower []rune, secret string) []Match {
	needle := lowerRunes(secret)
	secretRunes := []rune(secret)

	var out []Match
	for i := 0; ; {
		idx := indexFrom(textLower, needle, i)
		if idx < 0 {
			break
		}
		rawStart, rawEnd := idx, idx+len(needle)
		i = rawEnd

		sim := f.CasePenalty
		if runesEqual(textRunes[rawStart:rawEnd], secretRunes) {
			sim = 1.0
		}

		strategy := StrategyExact
		if f.atWordBoundary(textRunes, rawStart, rawEnd) {
			strategy = StrategyWord
		}

		start, end := trimSpan(textRunes, rawStart, rawEnd)
		if start >= end {
			continue
		}
		out = append(out, Match{
			Start:        start,
			End:          end,
			Secret:       secret,
			Similarity:   sim,
			Strategy:     strategy,
			HistoryIndex: LiveText,
		})
	}
	return out
}

// atWordBoundary reports whether the span is anchored at non-alphanumeric
// boundaries on both sides.
func (f *Finder) atWordBoundary(text []rune, start, end int) bool {
	if start > 0 && isWordRune(text[start-1]) {
		return false
	}
	if end < len(text) && isWordRune(text[end]) {
		return false
	}
	return true
}

// fuzzyMatches runs the sliding-window search for a secret with no exact
// occurrence. Window lengths cover [len-2, len+4], catching single typos
// and transpositions. The chunked pre-filter bounds the per-character
// edit-distance work to regions that could plausibly score.
func (f *Finder) fuzzyMatches(textRunes, textLower []rune, secret string) []Match {
	needle := lowerRunes(secret)
	if len(needle) < f.FuzzyMinLength {
		return nil
	}

	minWin := len(needle) - 2
	if minWin < 1 {
		minWin = 1
	}
	maxWin := len(needle) + 4

	var out []Match
	for _, region := range f.candidateRegions(textLower, needle, maxWin) {
		for w := minWin; w <= maxWin; w++ {
			for off := region.start; off+w <= region.end; off++ {
				sim := Ratio(needle, textLower[off:off+w])
				if sim < f.MinSimilarity {
					continue
				}
				if sim > f.CasePenalty {
					// Case-insensitive equality is exact territory;
					// a fuzzy hit never outranks the case penalty.
					sim = f.CasePenalty
				}
				start, end := trimSpan(textRunes, off, off+w)
				if start >= end {
					continue
				}
				out = append(out, Match{
					Start:        start,
					End:          end,
					Secret:       secret,
					Similarity:   sim,
					Strategy:     StrategyFuzzy,
					HistoryIndex: LiveText,
				})
			}
		}
	}
	return out
}

type region struct{ start, end int }

// candidateRegions scans the text in overlapping fixed-size chunks and
// keeps only those whose coarse rune-bag overlap with the secret clears
// the threshold. Without this gate the window search is quadratic over
// the whole transcript.
func (f *Finder) candidateRegions(textLower, needle []rune, maxWin int) []region {
	n := len(textLower)
	if n == 0 {
		return nil
	}
	chunk := f.ChunkSize
	if chunk < maxWin {
		chunk = maxWin
	}
	if n <= 2*chunk {
		return []region{{0, n}}
	}

	var regions []region
	step := chunk / 2
	for i := 0; i < n; i += step {
		end := i + chunk
		if end > n {
			end = n
		}
		overlap := bagOverlap(needle, textLower[i:end])
		if float64(overlap)/float64(len(needle)) > f.ChunkThreshold {
			// Pad by a window so matches straddling the chunk edge
			// are not lost.
			rs := i - maxWin
			if rs < 0 {
				rs = 0
			}
			re := end + maxWin
			if re > n {
				re = n
			}
			regions = append(regions, region{rs, re})
		}
		if end == n {
			break
		}
	}

	// Coalesce overlapping regions.
	if len(regions) < 2 {
		return regions
	}
	merged := regions[:1]
	for _, r := range regions[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
			}
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

// historyMatches returns zero-length anchors for secret copies that
// were typed and later deleted. Snapshots are grouped into eras, maximal
// runs of consecutive states containing the secret; each era that ends
// before the final state is a deleted copy and is anchored at its last
// state. A run reaching the final state is the live copy and is left to
// the live strategies.
func (f *Finder) historyMatches(secret string, history []string) []Match {
	needle := lowerRunes(secret)

	var out []Match
	runStart := -1
	for i, state := range history {
		contains := indexFrom(lowerRunes(state), needle, 0) >= 0
		switch {
		case contains && runStart < 0:
			runStart = i
		case !contains && runStart >= 0:
			out = append(out, f.eraAnchors(secret, needle, history[i-1], i-1)...)
			runStart = -1
		}
	}
	return out
}

// eraAnchors emits one anchor per occurrence of the secret in the era's
// last snapshot.
func (f *Finder) eraAnchors(secret string, needle []rune, state string, snapshot int) []Match {
	stateRunes := []rune(state)
	stateLower := lowerRunes(state)
	secretRunes := []rune(secret)

	var out []Match
	for i := 0; ; {
		idx := indexFrom(stateLower, needle, i)
		if idx < 0 {
			break
		}
		i = idx + len(needle)

		sim := f.CasePenalty
		if runesEqual(stateRunes[idx:idx+len(needle)], secretRunes) {
			sim = 1.0
		}
		out = append(out, Match{
			Secret:       secret,
			Similarity:   sim,
			Strategy:     StrategyDeleted,
			HistoryIndex: snapshot,
			HistStart:    idx,
			HistEnd:      idx + len(needle),
		})
	}
	return out
}

// merge resolves overlapping candidates: similarity descending, ties to
// the longer then earlier span, greedy accept of disjoint intervals.
// A final adjacency pass joins two accepted fragments of the same secret
// when the gap is at most two characters and the joined span stays
// strictly under twice the secret's length; two full back-to-back
// occurrences therefore never collapse into one.
func (f *Finder) merge(candidates []Match) []Match {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]Match, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if al, bl := a.End-a.Start, b.End-b.Start; al != bl {
			return al > bl
		}
		return a.Start < b.Start
	})

	var accepted []Match
	for _, cand := range sorted {
		conflict := false
		for _, acc := range accepted {
			if cand.overlaps(acc) {
				conflict = true
				break
			}
		}
		if !conflict {
			accepted = append(accepted, cand)
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Start < accepted[j].Start
	})

	var out []Match
	for _, m := range accepted {
		if len(out) > 0 {
			prev := &out[len(out)-1]
			gap := m.Start - prev.End
			mergedLen := m.End - prev.Start
			if prev.Secret == m.Secret && gap >= 0 && gap <= 2 &&
				mergedLen < 2*len([]rune(m.Secret)) {
				prev.End = m.End
				if m.Similarity > prev.Similarity {
					prev.Similarity = m.Similarity
				}
				if strategyRank(m.Strategy) < strategyRank(prev.Strategy) {
					prev.Strategy = m.Strategy
				}
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// strategyRank orders strategies by confidence; an adjacency join keeps
// the stronger fragment's strategy.
func strategyRank(s Strategy) int {
	switch s {
	case StrategyExact:
		return 0
	case StrategyWord:
		return 1
	case StrategyFuzzy:
		return 2
	default:
		return 3
	}
}

// trimSpan strips leading and trailing whitespace captured inside a
// match span.
func trimSpan(text []rune, start, end int) (int, int) {
	for start < end && unicode.IsSpace(text[start]) {
		start++
	}
	for end > start && unicode.IsSpace(text[end-1]) {
		end--
	}
	return start, end
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
