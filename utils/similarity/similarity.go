// Package similarity scores how close two titles are using normalized
// Levenshtein distance.
package similarity

import (
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Titled is implemented by anything that can be matched by title. Movie results
// populate a title, series results a name; implementations return whichever is set.
type Titled interface {
	MatchTitle() string
}

// Similarity returns 1 - d/max(len(a), len(b)) where d is the case-insensitive
// Levenshtein distance. Lengths are counted in runes. Returns 0 when either
// string is empty.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}

	longest := max(la, lb)
	d := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// FindBestMatch returns the candidate whose title is most similar to original.
// A single candidate is returned without scoring. Ties keep the first-seen
// candidate. The bool is false only when candidates is empty.
func FindBestMatch[T Titled](candidates []T, original string) (T, bool) {
	var zero T
	switch len(candidates) {
	case 0:
		return zero, false
	case 1:
		return candidates[0], true
	}

	bestIdx := 0
	bestScore := -1.0
	for i, c := range candidates {
		score := Similarity(c.MatchTitle(), original)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return candidates[bestIdx], true
}
