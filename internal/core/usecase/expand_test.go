package usecase

import (
	"strings"
	"testing"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

func TestExpandNoOpKeepsOriginalWithCaseVariants(t *testing.T) {
	expander := NewQueryExpander()

	out := expander.Expand("resistor")
	if out.Original != "resistor" {
		t.Fatalf("expected original preserved, got %q", out.Original)
	}
	if len(out.ExpansionTypes) != 0 {
		t.Fatalf("expected no expansion types, got %v", out.ExpansionTypes)
	}
	if !containsString(out.Variations, "resistor") {
		t.Fatalf("expected variations to include the original, got %v", out.Variations)
	}
	if !containsString(out.Variations, "Resistor") {
		t.Fatalf("expected a case variant, got %v", out.Variations)
	}
}

func TestExpandCorrectsMisspelling(t *testing.T) {
	expander := NewQueryExpander()

	out := expander.Expand("resister 10k")
	if !hasExpansionType(out, domain.ExpansionMisspelling) {
		t.Fatalf("expected misspelling expansion, got %v", out.ExpansionTypes)
	}
	if !containsString(out.Variations, "resistor 10k") {
		t.Fatalf("expected corrected variation, got %v", out.Variations)
	}
}

func TestExpandAbbreviationBaselinePlusSingleTerm(t *testing.T) {
	expander := NewQueryExpander()

	out := expander.Expand("smd res")
	if !hasExpansionType(out, domain.ExpansionAbbreviation) {
		t.Fatalf("expected abbreviation expansion, got %v", out.ExpansionTypes)
	}
	// Baseline substitutes the first expansion of every abbreviated term.
	if !containsString(out.Variations, "surface mount device resistor") {
		t.Fatalf("expected all-first-expansion baseline, got %v", out.Variations)
	}
	// Single-term substitutions leave the other term untouched.
	if !containsString(out.Variations, "smd resistor") {
		t.Fatalf("expected single-term substitution, got %v", out.Variations)
	}
}

func TestExpandNumericPatterns(t *testing.T) {
	expander := NewQueryExpander()

	out := expander.Expand("10K resistor")
	if !hasExpansionType(out, domain.ExpansionNumeric) {
		t.Fatalf("expected numeric expansion, got %v", out.ExpansionTypes)
	}
	if !containsString(out.Variations, "10000 resistor") {
		t.Fatalf("expected numeric form, got %v", out.Variations)
	}

	reverse := expander.Expand("10000 resistor")
	if !containsString(reverse.Variations, "10k resistor") {
		t.Fatalf("expected compact numeric form, got %v", reverse.Variations)
	}
}

func TestExpandCapsVariationsAtTen(t *testing.T) {
	expander := NewQueryExpander()

	out := expander.Expand("smd res cap led 10k")
	if len(out.Variations) > 10 {
		t.Fatalf("expected at most 10 variations, got %d", len(out.Variations))
	}
	if out.Expanded == "" {
		t.Fatalf("expected non-empty expanded string")
	}
	if len(strings.Fields(out.Expanded)) == 0 {
		t.Fatalf("expected expanded string to contain variations")
	}
}

func TestKeywordTermsDropStopWordsAndShortTokens(t *testing.T) {
	expander := NewQueryExpander()

	expanded := expander.Expand("what is the resistance of a 10k resistor")
	terms := expander.KeywordTerms(expanded)

	for _, banned := range []string{"what", "is", "the", "of", "a"} {
		if containsString(terms, banned) {
			t.Fatalf("expected stop word %q to be dropped, got %v", banned, terms)
		}
	}
	if !containsString(terms, "resistor") {
		t.Fatalf("expected resistor in terms, got %v", terms)
	}
	seen := map[string]int{}
	for _, term := range terms {
		seen[term]++
		if seen[term] > 1 {
			t.Fatalf("expected deduplicated terms, %q repeats", term)
		}
	}
}

func containsString(in []string, want string) bool {
	for _, s := range in {
		if s == want {
			return true
		}
	}
	return false
}

func hasExpansionType(out domain.ExpandedQuery, want domain.ExpansionType) bool {
	for _, t := range out.ExpansionTypes {
		if t == want {
			return true
		}
	}
	return false
}

func TestTitleCaseHandlesMultibyteRunes(t *testing.T) {
	got := titleCase("ω-series резистор")
	if got != "Ω-series Резистор" {
		t.Fatalf("titleCase() = %q", got)
	}
}
