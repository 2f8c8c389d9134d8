package domain

// AnswerType classifies how an answer was produced.
type AnswerType string

const (
	AnswerDirect      AnswerType = "direct"
	AnswerSynthesized AnswerType = "synthesized"
	AnswerPartial     AnswerType = "partial"
	AnswerNotFound    AnswerType = "not_found"
)

// Evidence is a supporting passage returned alongside an answer.
type Evidence struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
	Highlight  string  `json:"highlight"`
}

// ExtractedAnswer is the synthesizer output: the answer text, a confidence
// in [0,1], and the ranked evidence it was drawn from.
type ExtractedAnswer struct {
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	AnswerType AnswerType `json:"answer_type"`
	Evidence   []Evidence `json:"evidence"`
	Warning    string     `json:"warning,omitempty"`
}

// NotFoundAnswer is the terminal answer for an empty evidence set.
func NotFoundAnswer() ExtractedAnswer {
	return ExtractedAnswer{
		Text:       "No relevant information found in the knowledge base.",
		Confidence: 0,
		AnswerType: AnswerNotFound,
		Evidence:   []Evidence{},
	}
}
