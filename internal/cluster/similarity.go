package cluster

import (
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// CharSimilarity returns 1 - editDistance/maxLength over runes. Two empty
// strings are identical.
func CharSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.Distance(a, b, nil))/float64(maxLen)
}

// TokenSimilarity returns the Jaccard index of the whitespace-separated
// token sets of a and b.
func TokenSimilarity(a, b string) float64 {
	return jaccard(tokenSet(a), tokenSet(b))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
