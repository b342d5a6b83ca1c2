package utils

import (
	"strings"
	"unicode"
)

// Squash lowercases s and removes all whitespace, so "GL Account Line Item"
// and "glaccountlineitem" compare equal.
func Squash(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// LevenshteinDistance returns the edit distance between a and b, counted in runes.
func LevenshteinDistance(a, b string) int {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	// single DP row plus the previous one
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = minInt(
				curr[j-1]+1,    // insertion
				prev[j]+1,      // deletion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

// Similarity returns 1 - distance/maxLen in [0, 1]. Two empty strings are identical.
func Similarity(a, b string) float64 {
	maxLen := len([]rune(a))
	if n := len([]rune(b)); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(LevenshteinDistance(a, b))/float64(maxLen)
}

// ContainsAny reports whether s contains any of the substrings.
func ContainsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
