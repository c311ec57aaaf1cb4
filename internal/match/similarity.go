package match

import (
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Ratio computes a normalized edit-distance similarity in [0, 1] between
// two rune slices. Identical inputs score 1.0.
func Ratio(a, b []rune) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	d := levenshtein.ComputeDistance(string(a), string(b))
	return 1.0 - float64(d)/float64(max)
}

// bagOverlap counts how many runes of needle appear in haystack,
// multiset-style. It is the coarse score used by the chunked pre-filter:
// cheap, order-insensitive, and an upper bound on what the windowed edit
// distance could find in the chunk.
func bagOverlap(needle, haystack []rune) int {
	counts := make(map[rune]int, len(haystack))
	for _, r := range haystack {
		counts[r]++
	}
	overlap := 0
	for _, r := range needle {
		if counts[r] > 0 {
			counts[r]--
			overlap++
		}
	}
	return overlap
}

// lowerRunes lowercases rune by rune, preserving a 1:1 position mapping
// with the input (strings.ToLower may change lengths).
func lowerRunes(s string) []rune {
	rs := []rune(s)
	for i, r := range rs {
		rs[i] = unicode.ToLower(r)
	}
	return rs
}

// indexFrom finds needle in haystack at or after from, returning the
// rune offset or -1.
func indexFrom(haystack, needle []rune, from int) int {
	if len(needle) == 0 || from < 0 {
		return -1
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		ok := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				ok = false
				break
			}
		}
		if ok {
			return i
		}
	}
	return -1
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
