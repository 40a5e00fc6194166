// Package match provides name normalization and fuzzy title matching.
// Matching is pure string scoring so it stays independent of storage and
// trivially unit-testable.
package match

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/quickflip/marketbot/internal/domain"
)

// TitleThreshold is the minimum similarity for a chat listing title to be
// considered the same listing.
const TitleThreshold = 0.5

// NormalizeName canonicalizes a buyer display name. Two surface strings that
// normalize equal are the same buyer: case folded, inner whitespace collapsed,
// trailing punctuation stripped.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), " ")
	return strings.TrimRightFunc(name, func(r rune) bool {
		return unicode.IsPunct(r)
	})
}

// SameBuyer reports whether an observed sender name refers to the expected
// buyer. A prefix relationship in either direction is accepted: the inbox
// list may show only a first name while the open thread shows the full name.
func SameBuyer(expected, observed string) bool {
	e := NormalizeName(expected)
	o := NormalizeName(observed)
	if e == "" || o == "" {
		return false
	}
	if e == o {
		return true
	}
	return strings.HasPrefix(e, o+" ") || strings.HasPrefix(o, e+" ")
}

// Similarity scores two strings in [0,1] from their normalized levenshtein
// distance. 1 means equal.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// BestListing returns the candidate whose title best matches the observed
// title, or nil when no candidate clears the threshold.
func BestListing(observedTitle string, candidates []domain.Listing) *domain.Listing {
	if strings.TrimSpace(observedTitle) == "" {
		return nil
	}

	var best *domain.Listing
	bestScore := 0.0
	for i := range candidates {
		score := Similarity(observedTitle, candidates[i].Title)
		if score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}
	if bestScore < TitleThreshold {
		return nil
	}
	return best
}
