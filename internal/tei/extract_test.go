package tei

import (
	"strings"
	"testing"
)

const samplePage1 = `Proceedings of the Imaginary Conference 2021
A Survey of Hybrid Retrieval Techniques for Scholarly Search
Jane Roe, John Doe
doi:10.1234/survey.2021.001
`

const sampleBody = samplePage1 + `
Abstract
Hybrid retrieval combines lexical and vector signals. This survey reviews
fusion strategies across forty systems.

1 Introduction
Retrieval over scholarly corpora has two complementary signal families.

2 Methods
We categorize systems by their fusion stage.

Conclusion
Rank fusion remains the most robust combiner.

References
[1] A. Author. "Reciprocal Rank Fusion Outperforms Condorcet". 2009. doi:10.1145/1571941.1572114
[2] B. Writer. Dense Passage Retrieval for Open-Domain Question Answering. 2020.
[3] C. Scribbler. Short note.
`

func TestParseMetadata(t *testing.T) {
	ex := Parse(sampleBody, samplePage1)

	if ex.Title != "A Survey of Hybrid Retrieval Techniques for Scholarly Search" {
		t.Errorf("Title = %q", ex.Title)
	}
	if ex.DOI != "10.1234/survey.2021.001" {
		t.Errorf("DOI = %q", ex.DOI)
	}
	if ex.Year != 2021 {
		t.Errorf("Year = %d, want 2021", ex.Year)
	}
}

func TestParseSections(t *testing.T) {
	ex := Parse(sampleBody, samplePage1)

	if !strings.Contains(ex.Abstract, "lexical and vector signals") {
		t.Errorf("Abstract = %q", ex.Abstract)
	}

	names := make([]string, 0, len(ex.Sections))
	for _, s := range ex.Sections {
		names = append(names, s.Name)
	}
	want := []string{"abstract", "introduction", "methods", "conclusion"}
	if len(names) != len(want) {
		t.Fatalf("section names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("section names = %v, want %v", names, want)
		}
	}

	// The references section becomes references, never a text section.
	for _, s := range ex.Sections {
		if s.Name == "references" {
			t.Error("references leaked into text sections")
		}
	}
}

func TestParseReferences(t *testing.T) {
	ex := Parse(sampleBody, samplePage1)

	if len(ex.References) != 2 {
		t.Fatalf("got %d references, want 2: %+v", len(ex.References), ex.References)
	}

	first := ex.References[0]
	if first.DOI != "10.1145/1571941.1572114" {
		t.Errorf("first DOI = %q", first.DOI)
	}
	if first.Year != 2009 {
		t.Errorf("first Year = %d", first.Year)
	}

	second := ex.References[1]
	if second.DOI != "" {
		t.Errorf("second DOI = %q, want empty", second.DOI)
	}
	if second.Title != "Dense Passage Retrieval for Open-Domain Question Answering" {
		t.Errorf("second Title = %q", second.Title)
	}
	if second.Year != 2020 {
		t.Errorf("second Year = %d", second.Year)
	}
}

func TestParseNoHeaders(t *testing.T) {
	text := "Just a plain document with no structure at all.\nMore text here."
	ex := Parse(text, "")
	if len(ex.Sections) != 1 || ex.Sections[0].Name != "body" {
		t.Fatalf("sections = %+v, want single body section", ex.Sections)
	}
}

func TestFindDOITrimsPunctuation(t *testing.T) {
	if got := findDOI("see https://doi.org/10.1000/abc123."); got != "10.1000/abc123" {
		t.Errorf("findDOI = %q", got)
	}
	if got := findDOI("no identifier here"); got != "" {
		t.Errorf("findDOI = %q, want empty", got)
	}
}
