// Package identity provides deterministic normalization of DOIs, titles, and
// author names. These functions gate uniqueness checks, so the same input must
// produce the same output forever; change them only with a data migration.
package identity

import (
	"strings"
	"unicode"
)

// DOI prefixes stripped during normalization, matched case-insensitively.
var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi:",
}

// NormalizeDOI returns the canonical comparison form of a DOI: lowercase, with
// resolver URL and "doi:" prefixes stripped, surrounding whitespace trimmed.
// Returns "" if nothing remains, which callers treat as "no DOI".
func NormalizeDOI(raw string) string {
	doi := strings.TrimSpace(strings.ToLower(raw))
	for changed := true; changed; {
		changed = false
		for _, prefix := range doiPrefixes {
			if strings.HasPrefix(doi, prefix) {
				doi = strings.TrimPrefix(doi, prefix)
				changed = true
			}
		}
	}
	return strings.TrimSpace(doi)
}

// displayPunct is the fixed set of display-only punctuation stripped from
// titles and names. Applied consistently at write and query time; the exact
// set matters less than using the same one everywhere.
const displayPunct = ".,;:!?\"'`()[]{}"

// NormalizeTitle returns the canonical comparison form of a title: lowercase,
// display punctuation removed, internal whitespace collapsed to single spaces.
func NormalizeTitle(raw string) string {
	return collapse(stripPunct(strings.ToLower(raw)))
}

// honorifics stripped from the front of author names.
var honorifics = map[string]bool{
	"dr":   true,
	"prof": true,
	"mr":   true,
	"mrs":  true,
	"ms":   true,
	"sir":  true,
}

// NormalizeAuthor returns the comparison forms of an author name and
// affiliation. A blank affiliation maps to "", which is a distinct identity
// value from any present affiliation.
func NormalizeAuthor(name, affiliation string) (string, string) {
	n := collapse(stripPunct(strings.ToLower(name)))

	// Drop leading honorifics ("Dr Jane Doe" and "Jane Doe" are the same
	// person as far as byline identity goes).
	fields := strings.Fields(n)
	for len(fields) > 1 && honorifics[fields[0]] {
		fields = fields[1:]
	}
	n = strings.Join(fields, " ")

	return n, collapse(stripPunct(strings.ToLower(affiliation)))
}

// TitleSimilarity returns a similarity score in [0, 1] between two titles
// using the Dice coefficient over normalized token sets. Used to accept or
// reject bibliographic candidates matched by title rather than DOI.
func TitleSimilarity(a, b string) float64 {
	ta := tokenSet(NormalizeTitle(a))
	tb := tokenSet(NormalizeTitle(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	common := 0
	for tok := range ta {
		if tb[tok] {
			common++
		}
	}
	return 2 * float64(common) / float64(len(ta)+len(tb))
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// stripPunct removes display punctuation, replacing it with spaces so that
// "graph-based" and "graph based" collapse to the same form.
func stripPunct(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(displayPunct, r) || r == '-' || r == '–' || r == '—' {
			return ' '
		}
		return r
	}, s)
}

// collapse trims the string and collapses internal whitespace runs to a
// single ASCII space.
func collapse(s string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
