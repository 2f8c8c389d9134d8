package domain

import "time"

// ItemMetadata carries the known optional attributes of a knowledge-base
// item plus a string-keyed bag for unpredictable import-time fields.
type ItemMetadata struct {
	Manufacturer string            `json:"manufacturer,omitempty"`
	Category     string            `json:"category,omitempty"`
	PriceMin     float64           `json:"price_min,omitempty"`
	PriceMax     float64           `json:"price_max,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// KBItem is a knowledge-base entry eligible for indexing and retrieval.
type KBItem struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Metadata  ItemMetadata `json:"metadata"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// DocumentChunk is a passage extracted from a source document.
type DocumentChunk struct {
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Source     string    `json:"source"`
	Text       string    `json:"text"`
	UpdatedAt  time.Time `json:"updated_at"`
}
