package usecase

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

const (
	maxVariations      = 10
	expandedVariations = 3
)

// QueryExpander widens a query lexically before retrieval: misspelling
// correction, abbreviation/synonym substitution, numeric-pattern expansion
// and case variants. It is deterministic and makes no external calls.
type QueryExpander struct {
	misspellings  map[string]string
	abbreviations map[string][]string
	synonyms      map[string][]string
	stopWords     map[string]struct{}
}

func NewQueryExpander() *QueryExpander {
	return &QueryExpander{
		misspellings:  defaultMisspellings,
		abbreviations: defaultAbbreviations,
		synonyms:      defaultSynonyms,
		stopWords:     defaultStopWords,
	}
}

func (e *QueryExpander) Expand(query string) domain.ExpandedQuery {
	original := strings.TrimSpace(query)
	out := domain.ExpandedQuery{
		Original:       original,
		ExpansionTypes: []domain.ExpansionType{},
	}
	if original == "" {
		out.Variations = []string{}
		return out
	}

	applied := map[domain.ExpansionType]bool{}
	variations := []string{original}

	corrected, fixed := e.correctMisspellings(original)
	if fixed {
		applied[domain.ExpansionMisspelling] = true
		variations = append(variations, corrected)
	}

	abbrev, hitAbbrev, hitSynonym := e.substituteTerms(corrected)
	if hitAbbrev {
		applied[domain.ExpansionAbbreviation] = true
	}
	if hitSynonym {
		applied[domain.ExpansionSynonym] = true
	}
	variations = append(variations, abbrev...)

	numeric := expandNumericPatterns(corrected)
	if len(numeric) > 0 {
		applied[domain.ExpansionNumeric] = true
		variations = append(variations, numeric...)
	}

	variations = append(variations, caseVariants(original)...)

	out.Variations = dedupeStrings(variations, maxVariations)
	top := out.Variations
	if len(top) > expandedVariations {
		top = top[:expandedVariations]
	}
	out.Expanded = strings.Join(top, " ")

	for _, t := range []domain.ExpansionType{
		domain.ExpansionMisspelling,
		domain.ExpansionAbbreviation,
		domain.ExpansionSynonym,
		domain.ExpansionNumeric,
	} {
		if applied[t] {
			out.ExpansionTypes = append(out.ExpansionTypes, t)
		}
	}
	return out
}

// KeywordTerms tokenizes every variation, drops stop-words and tokens
// shorter than two characters, and deduplicates.
func (e *QueryExpander) KeywordTerms(expanded domain.ExpandedQuery) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 16)
	for _, variation := range expanded.Variations {
		for _, token := range splitAlphaNumLower(variation) {
			if len(token) < 2 {
				continue
			}
			if _, stop := e.stopWords[token]; stop {
				continue
			}
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			out = append(out, token)
		}
	}
	return out
}

func (e *QueryExpander) correctMisspellings(query string) (string, bool) {
	words := strings.Fields(query)
	fixed := false
	for i, word := range words {
		if repl, ok := e.misspellings[strings.ToLower(word)]; ok {
			words[i] = repl
			fixed = true
		}
	}
	if !fixed {
		return query, false
	}
	return strings.Join(words, " "), true
}

// substituteTerms generates the all-first-expansion baseline plus one
// variant per single-term substitution, bounding combinatorial growth.
func (e *QueryExpander) substituteTerms(query string) (variants []string, hitAbbrev, hitSynonym bool) {
	words := strings.Fields(query)
	baseline := make([]string, len(words))
	copy(baseline, words)

	for i, word := range words {
		key := strings.ToLower(word)
		if expansions, ok := e.abbreviations[key]; ok && len(expansions) > 0 {
			hitAbbrev = true
			baseline[i] = expansions[0]
			for _, expansion := range expansions {
				variants = append(variants, replaceWordAt(words, i, expansion))
			}
			continue
		}
		if alternates, ok := e.synonyms[key]; ok && len(alternates) > 0 {
			hitSynonym = true
			for _, alternate := range alternates {
				variants = append(variants, replaceWordAt(words, i, alternate))
			}
		}
	}

	if hitAbbrev {
		variants = append([]string{strings.Join(baseline, " ")}, variants...)
	}
	return variants, hitAbbrev, hitSynonym
}

func replaceWordAt(words []string, i int, replacement string) string {
	out := make([]string, len(words))
	copy(out, words)
	out[i] = replacement
	return strings.Join(out, " ")
}

var (
	numericSuffixRe = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)k$`)
	plainNumberRe   = regexp.MustCompile(`^\d+$`)
)

func expandNumericPatterns(query string) []string {
	words := strings.Fields(query)
	var variants []string
	for i, word := range words {
		if m := numericSuffixRe.FindStringSubmatch(word); m != nil {
			value, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			expanded := strconv.FormatFloat(value*1000, 'f', -1, 64)
			variants = append(variants,
				replaceWordAt(words, i, expanded),
				replaceWordAt(words, i, m[1]+" thousand"),
			)
			continue
		}
		if plainNumberRe.MatchString(word) {
			value, err := strconv.Atoi(word)
			if err != nil || value < 1000 || value%1000 != 0 {
				continue
			}
			short := strconv.Itoa(value/1000) + "k"
			variants = append(variants,
				replaceWordAt(words, i, short),
				replaceWordAt(words, i, strconv.Itoa(value/1000)+" thousand"),
			)
		}
	}
	return variants
}

func caseVariants(query string) []string {
	lower := strings.ToLower(query)
	title := titleCase(lower)
	return []string{lower, title}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(word)
		if len(runes) == 0 {
			continue
		}
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func dedupeStrings(in []string, limit int) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
