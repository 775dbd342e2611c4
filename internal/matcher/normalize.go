// Package matcher decides whether catalog search results correspond to a
// requested song and ranks near misses for later review.
package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^\p{L}\p{N}]+`)

	parenthesized = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	// artistConnectors are words and symbols joining several credited artists.
	artistConnectors = regexp.MustCompile(`(?i)\s*(?:\bfeat\b\.?|\bft\b\.?|\bfeaturing\b|\bwith\b|\band\b|&|×|\sx\s|\se\s)\s*`)
	artistSplit      = regexp.MustCompile(`[,;]`)
)

// foldDiacritics decomposes characters and drops the combining marks.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeTitle folds diacritics and case and collapses every run of
// non-alphanumeric characters into a single space.
func NormalizeTitle(s string) string {
	s = strings.ToLower(foldDiacritics(s))
	s = nonAlphanumeric.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ArtistTokens splits a credit such as "Daft Punk feat. Pharrell Williams"
// into normalized artist names. Parenthesized asides are dropped.
func ArtistTokens(s string) []string {
	s = parenthesized.ReplaceAllString(s, ",")
	s = artistConnectors.ReplaceAllString(" "+s+" ", ",")

	var tokens []string
	seen := make(map[string]bool)
	for _, part := range artistSplit.Split(s, -1) {
		token := NormalizeTitle(part)
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}
	return tokens
}
