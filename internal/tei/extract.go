// Package tei extracts structured metadata, section text, and references
// from uploaded PDFs. Extraction is heuristic and best-effort: a field that
// cannot be recovered is left empty rather than failing the ingestion.
package tei

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extraction is the structured result of processing one document.
type Extraction struct {
	Title    string
	DOI      string
	Year     int
	Venue    string
	Abstract string

	Authors    []Author
	Sections   []Section
	References []Reference
}

// Author is an extracted byline entry.
type Author struct {
	Name        string
	Affiliation string
}

// Section is a named span of body text.
type Section struct {
	Name string
	Text string
}

// Reference is one entry from the bibliography. At least one of DOI or Title
// is set.
type Reference struct {
	DOI   string
	Title string
	Year  int
}

// maxPages bounds how much of a document is read. Scholarly PDFs beyond this
// are almost always supplementary material.
const maxPages = 80

// DOI pattern: 10.XXXX/... where XXXX is 4+ digits.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// ExtractPDF processes a PDF file into an Extraction.
func ExtractPDF(path string) (*Extraction, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	pages := r.NumPage()
	if pages > maxPages {
		pages = maxPages
	}

	var builder strings.Builder
	var firstPage string
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if firstPage == "" {
			firstPage = text
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}

	return Parse(builder.String(), firstPage), nil
}

// Parse builds an Extraction from plain text. The first page is passed
// separately since the title and DOI almost always live there.
func Parse(fullText, firstPage string) *Extraction {
	if firstPage == "" {
		firstPage = fullText
	}

	ex := &Extraction{
		Title: findTitle(firstPage),
		DOI:   findDOI(firstPage),
		Year:  findYear(firstPage),
	}

	sections := detectSections(fullText)
	for _, s := range sections {
		switch s.Name {
		case "abstract":
			ex.Abstract = s.Text
			ex.Sections = append(ex.Sections, s)
		case "references":
			ex.References = parseReferences(s.Text)
		default:
			ex.Sections = append(ex.Sections, s)
		}
	}

	// A document without recognizable headers still gets one body section.
	if len(ex.Sections) == 0 && strings.TrimSpace(fullText) != "" {
		ex.Sections = []Section{{Name: "body", Text: strings.TrimSpace(fullText)}}
	}

	return ex
}

// sectionNames maps header keywords to canonical section labels.
var sectionNames = []struct {
	keyword string
	label   string
}{
	{"abstract", "abstract"},
	{"introduction", "introduction"},
	{"background", "background"},
	{"related work", "related_work"},
	{"methodology", "methods"},
	{"methods", "methods"},
	{"method", "methods"},
	{"experiments", "results"},
	{"results", "results"},
	{"evaluation", "results"},
	{"discussion", "discussion"},
	{"conclusion", "conclusion"},
	{"acknowledgment", "acknowledgments"},
	{"acknowledgement", "acknowledgments"},
	{"references", "references"},
	{"bibliography", "references"},
	{"appendix", "appendix"},
}

// detectSections splits text at recognized section headers. Text before the
// first header is dropped; it is front matter already captured as metadata.
func detectSections(text string) []Section {
	var sections []Section
	var current string
	var body []string

	flush := func() {
		if current == "" {
			return
		}
		joined := strings.TrimSpace(strings.Join(body, "\n"))
		if joined != "" {
			sections = append(sections, Section{Name: current, Text: joined})
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if label, ok := headerLabel(trimmed); ok {
			flush()
			current = label
			body = nil
			continue
		}
		body = append(body, trimmed)
	}
	flush()

	return sections
}

// headerLabel reports whether a line is a section header and returns its
// canonical label. Headers are short lines containing a known keyword,
// optionally numbered.
func headerLabel(line string) (string, bool) {
	if len(line) > 60 {
		return "", false
	}
	lower := strings.ToLower(line)
	for _, sn := range sectionNames {
		if !strings.Contains(lower, sn.keyword) {
			continue
		}
		// The keyword must dominate the line, not appear mid-sentence.
		extra := len(lower) - len(sn.keyword)
		if extra <= 10 {
			return sn.label, true
		}
	}
	return "", false
}

// findTitle returns the first substantial line of the first page.
func findTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !isHeaderLine(line) {
			return line
		}
	}
	return ""
}

// findDOI finds the first valid DOI in text.
func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		if isValidDOI(match) {
			return match
		}
	}
	return ""
}

func findYear(text string) int {
	m := yearPattern.FindString(text)
	if m == "" {
		return 0
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return year
}

func isValidDOI(doi string) bool {
	if len(doi) < 10 {
		return false
	}
	if !strings.HasPrefix(doi, "10.") {
		return false
	}
	slashIdx := strings.Index(doi, "/")
	return slashIdx != -1 && slashIdx < len(doi)-1
}

// isHeaderLine checks if a line is likely a running header or footer.
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "journal") || strings.Contains(lower, "proceedings") {
		return true
	}
	if strings.Contains(lower, "volume") && strings.Contains(lower, "issue") {
		return true
	}
	if strings.Contains(lower, "copyright") {
		return true
	}
	if strings.Contains(lower, "preprint") {
		return true
	}
	return false
}

// refEntryPattern matches numbered bibliography entry starts like "[12]" or
// "12.".
var refEntryPattern = regexp.MustCompile(`^\s*(\[\d+\]|\d+\.)\s+`)

// parseReferences splits a references section into entries. Numbered entries
// split on their markers; unnumbered bibliographies fall back to one entry
// per line.
func parseReferences(text string) []Reference {
	lines := strings.Split(text, "\n")

	var entries []string
	var current []string
	numbered := false
	for _, line := range lines {
		if refEntryPattern.MatchString(line) {
			numbered = true
			if len(current) > 0 {
				entries = append(entries, strings.Join(current, " "))
			}
			current = []string{refEntryPattern.ReplaceAllString(line, "")}
			continue
		}
		current = append(current, strings.TrimSpace(line))
	}
	if len(current) > 0 {
		entries = append(entries, strings.Join(current, " "))
	}
	if !numbered {
		entries = nil
		for _, line := range lines {
			if line = strings.TrimSpace(line); line != "" {
				entries = append(entries, line)
			}
		}
	}

	var refs []Reference
	for _, entry := range entries {
		ref := Reference{
			DOI:  findDOI(entry),
			Year: findYear(entry),
		}
		if ref.DOI == "" {
			ref.Title = referenceTitle(entry)
			if ref.Title == "" {
				continue
			}
		}
		refs = append(refs, ref)
	}
	return refs
}

// quotedTitle matches a quoted span, the usual title form in bibliographies.
var quotedTitle = regexp.MustCompile(`[“"]([^”"]{10,})[”"]`)

// referenceTitle pulls a best-effort title from a bibliography entry without
// a DOI. Quoted titles win; otherwise the longest sentence-like span is used.
func referenceTitle(entry string) string {
	if m := quotedTitle.FindStringSubmatch(entry); m != nil {
		return strings.TrimSpace(strings.TrimRight(m[1], ".,"))
	}

	var best string
	for _, part := range strings.Split(entry, ". ") {
		part = strings.TrimSpace(part)
		if len(part) > len(best) {
			best = part
		}
	}
	if len(best) < 15 {
		return ""
	}
	return strings.TrimRight(best, ".,")
}
