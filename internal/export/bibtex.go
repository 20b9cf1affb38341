// Package export renders papers as BibTeX for use in reference managers and
// LaTeX documents.
package export

import (
	"fmt"
	"strings"

	"github.com/citeweave/citeweave/internal/paper"
	"github.com/citeweave/citeweave/internal/storage"
)

// CollectionBibTeX renders every paper in a collection as BibTeX entries
// separated by blank lines, in collection order.
func CollectionBibTeX(db *storage.DB, collectionID string) (string, error) {
	papers, err := db.ListPapers(collectionID)
	if err != nil {
		return "", err
	}

	keys := make(map[string]int)
	var entries []string
	for i := range papers {
		authors, err := db.ListPaperAuthors(papers[i].ID)
		if err != nil {
			return "", fmt.Errorf("listing authors for %s: %w", papers[i].ID, err)
		}
		entries = append(entries, ToBibTeX(&papers[i], authors, keys))
	}
	return strings.Join(entries, "\n"), nil
}

// ToBibTeX renders one paper as a BibTeX entry. keys tracks citation keys
// already issued so duplicates get a numeric suffix; pass the same map for
// every entry of one export.
func ToBibTeX(p *paper.Paper, authors []paper.Author, keys map[string]int) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@%s{%s,\n", entryType(p), citationKey(p, authors, keys)))

	if len(authors) > 0 {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", formatAuthors(authors)))
	}
	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(p.Title)))

	if p.Venue != "" {
		fieldName := "journal"
		if entryType(p) == "inproceedings" {
			fieldName = "booktitle"
		}
		b.WriteString(fmt.Sprintf("  %s = {%s},\n", fieldName, escapeLatex(p.Venue)))
	}
	if p.Year > 0 {
		b.WriteString(fmt.Sprintf("  year = {%d},\n", p.Year))
	}
	if p.DOI != "" {
		b.WriteString(fmt.Sprintf("  doi = {%s},\n", p.DOI))
	}
	if p.URL != "" && p.DOI == "" {
		b.WriteString(fmt.Sprintf("  url = {%s},\n", p.URL))
	}
	if p.Abstract != "" {
		b.WriteString(fmt.Sprintf("  abstract = {%s},\n", escapeLatex(p.Abstract)))
	}

	b.WriteString("}\n")
	return b.String()
}

// entryType picks the BibTeX entry type from the venue.
func entryType(p *paper.Paper) string {
	venue := strings.ToLower(p.Venue)

	if strings.Contains(venue, "proceedings") ||
		strings.Contains(venue, "conference") ||
		strings.Contains(venue, "workshop") ||
		strings.Contains(venue, "symposium") {
		return "inproceedings"
	}
	return "article"
}

// citationKey builds a key of the form "roe2020hybrid": first author's last
// name, year, first significant title word. Collisions get a numeric suffix.
func citationKey(p *paper.Paper, authors []paper.Author, keys map[string]int) string {
	surname := "anon"
	if len(authors) > 0 {
		fields := strings.Fields(authors[0].NormName)
		if len(fields) > 0 {
			surname = fields[len(fields)-1]
		}
	}

	word := "untitled"
	for _, w := range strings.Fields(p.NormTitle) {
		if !stopWords[w] {
			word = w
			break
		}
	}

	key := surname
	if p.Year > 0 {
		key += fmt.Sprintf("%d", p.Year)
	}
	key += word

	keys[key]++
	if n := keys[key]; n > 1 {
		return fmt.Sprintf("%s%d", key, n)
	}
	return key
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "on": true, "of": true,
	"for": true, "and": true, "in": true, "to": true, "with": true,
}

// formatAuthors joins authors BibTeX-style: "Jane Roe and John Doe".
func formatAuthors(authors []paper.Author) string {
	names := make([]string, len(authors))
	for i, a := range authors {
		names[i] = a.Name
	}
	return strings.Join(names, " and ")
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	// Order matters: & must be first (before other escapes that might produce &)
	replacer := strings.NewReplacer(
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
