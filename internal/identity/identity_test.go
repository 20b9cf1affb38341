package identity

import (
	"math"
	"testing"
)

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain DOI",
			raw:  "10.1000/abc",
			want: "10.1000/abc",
		},
		{
			name: "https resolver prefix",
			raw:  "https://doi.org/10.1000/ABC",
			want: "10.1000/abc",
		},
		{
			name: "dx resolver prefix",
			raw:  "http://dx.doi.org/10.1000/abc",
			want: "10.1000/abc",
		},
		{
			name: "doi scheme with trailing space",
			raw:  "doi:10.1000/abc ",
			want: "10.1000/abc",
		},
		{
			name: "uppercase scheme",
			raw:  "DOI:10.1000/ABC",
			want: "10.1000/abc",
		},
		{
			name: "stacked prefixes",
			raw:  "https://doi.org/doi:10.1000/abc",
			want: "10.1000/abc",
		},
		{
			name: "whitespace only",
			raw:  "   ",
			want: "",
		},
		{
			name: "empty after stripping",
			raw:  "doi:",
			want: "",
		},
		{
			name: "empty input",
			raw:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDOI(tt.raw); got != tt.want {
				t.Errorf("NormalizeDOI(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeDOI_Idempotent(t *testing.T) {
	inputs := []string{
		"https://doi.org/10.1000/ABC",
		"doi:10.1145/3292500.3330919",
		"10.1000/xyz",
	}
	for _, raw := range inputs {
		once := NormalizeDOI(raw)
		twice := NormalizeDOI(once)
		if once != twice {
			t.Errorf("NormalizeDOI not idempotent for %q: %q != %q", raw, once, twice)
		}
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "lowercases and collapses whitespace",
			raw:  "Attention  Is\tAll You Need",
			want: "attention is all you need",
		},
		{
			name: "strips display punctuation",
			raw:  "Graph-Based Retrieval: A Survey.",
			want: "graph based retrieval a survey",
		},
		{
			name: "em dash treated as separator",
			raw:  "Deep Learning—An Overview",
			want: "deep learning an overview",
		},
		{
			name: "empty",
			raw:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTitle(tt.raw); got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeAuthor(t *testing.T) {
	tests := []struct {
		name     string
		inName   string
		inAff    string
		wantName string
		wantAff  string
	}{
		{
			name:     "plain name without affiliation",
			inName:   "Jane Doe",
			inAff:    "",
			wantName: "jane doe",
			wantAff:  "",
		},
		{
			name:     "honorific stripped",
			inName:   "Dr. Jane Doe",
			inAff:    "MIT",
			wantName: "jane doe",
			wantAff:  "mit",
		},
		{
			name:     "affiliation whitespace collapsed",
			inName:   "J. Doe",
			inAff:    "  University of   Somewhere ",
			wantName: "j doe",
			wantAff:  "university of somewhere",
		},
		{
			name:     "blank affiliation maps to empty",
			inName:   "Jane Doe",
			inAff:    "   ",
			wantName: "jane doe",
			wantAff:  "",
		},
		{
			name:     "honorific alone is kept",
			inName:   "Prof",
			inAff:    "",
			wantName: "prof",
			wantAff:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotName, gotAff := NormalizeAuthor(tt.inName, tt.inAff)
			if gotName != tt.wantName || gotAff != tt.wantAff {
				t.Errorf("NormalizeAuthor(%q, %q) = (%q, %q), want (%q, %q)",
					tt.inName, tt.inAff, gotName, gotAff, tt.wantName, tt.wantAff)
			}
		})
	}
}

func TestTitleSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{
			name: "identical titles",
			a:    "Attention Is All You Need",
			b:    "attention is all you need",
			want: 1.0,
		},
		{
			name: "disjoint titles",
			a:    "Graph Neural Networks",
			b:    "Protein Folding Advances",
			want: 0.0,
		},
		{
			name: "empty side",
			a:    "",
			b:    "anything",
			want: 0.0,
		},
		{
			name: "partial overlap",
			a:    "deep learning survey",
			b:    "deep learning",
			want: 0.8, // 2*2/(3+2)
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TitleSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 0.0001 {
				t.Errorf("TitleSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTitleSimilarity_Commutative(t *testing.T) {
	a := "hybrid retrieval for citations"
	b := "citation retrieval"
	if TitleSimilarity(a, b) != TitleSimilarity(b, a) {
		t.Errorf("TitleSimilarity is not commutative for %q / %q", a, b)
	}
}
