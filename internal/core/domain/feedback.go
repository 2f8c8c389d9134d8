package domain

import "time"

// PatternType selects the matching strategy for a negative example.
type PatternType string

const (
	PatternExact    PatternType = "exact"
	PatternContains PatternType = "contains"
	PatternRegex    PatternType = "regex"
	PatternSemantic PatternType = "semantic"
)

// AnswerField is the reserved field bucket for rejected answers, stored as
// (query, bad answer) pairs.
const AnswerField = "answer"

// NegativeExample records a rejected suggestion or downvoted answer.
// Repeated identical rejections increment Frequency rather than creating
// duplicate records.
type NegativeExample struct {
	ID           string      `json:"id"`
	Field        string      `json:"field"`
	Pattern      string      `json:"pattern"`
	PatternType  PatternType `json:"pattern_type"`
	WrongValue   string      `json:"wrong_value"`
	CorrectValue string      `json:"correct_value,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	Frequency    int         `json:"frequency"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// NegativeCheck is the outcome of matching a candidate value against the
// stored negative examples.
type NegativeCheck struct {
	IsBlocked bool `json:"is_blocked"`
	// ConfidenceAdjustment is zero or negative; callers add it to the
	// candidate's confidence.
	ConfidenceAdjustment float64 `json:"confidence_adjustment"`
	Warning              string  `json:"warning,omitempty"`
	MatchedID            string  `json:"matched_id,omitempty"`
}
