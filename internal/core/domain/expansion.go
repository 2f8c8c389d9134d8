package domain

// ExpansionType labels a lexical widening rule that actually fired.
type ExpansionType string

const (
	ExpansionMisspelling  ExpansionType = "misspelling"
	ExpansionAbbreviation ExpansionType = "abbreviation"
	ExpansionSynonym      ExpansionType = "synonym"
	ExpansionNumeric      ExpansionType = "numeric"
)

// ExpandedQuery is the deterministic output of query expansion.
type ExpandedQuery struct {
	Original string `json:"original"`
	// Expanded joins the top variations into one string for embedding.
	Expanded       string          `json:"expanded"`
	Variations     []string        `json:"variations"`
	ExpansionTypes []ExpansionType `json:"expansion_types"`
}
