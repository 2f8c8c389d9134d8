package domain

import "time"

// EmbeddingItem is one unit of work for the batch embedding generator.
type EmbeddingItem struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Title    string       `json:"title,omitempty"`
	Metadata ItemMetadata `json:"metadata"`
}

// EmbeddingResult pairs an item with its generated vector.
type EmbeddingResult struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"-"`
}

// EmbeddingFailure records a per-item failure with its reason; failures
// never abort a batch.
type EmbeddingFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchProgress is emitted after every completed wave.
type BatchProgress struct {
	Completed    int           `json:"completed"`
	Total        int           `json:"total"`
	Successful   int           `json:"successful"`
	Failed       int           `json:"failed"`
	CurrentBatch int           `json:"current_batch"`
	TotalBatches int           `json:"total_batches"`
	ETA          time.Duration `json:"eta"`
}

// BatchStats summarizes a finished batch run.
type BatchStats struct {
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
	AvgPerItem time.Duration `json:"avg_per_item"`
}

// BatchOutcome is the full result of a batch embedding run. Results keep
// wave-insertion order, not a sorted order.
type BatchOutcome struct {
	Results  []EmbeddingResult  `json:"results"`
	Failures []EmbeddingFailure `json:"failures"`
	Stats    BatchStats         `json:"stats"`
}
