package bleve

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

// document is the shape stored per item. Category and manufacturer use
// the keyword analyzer so filters match exact values, not tokens.
type document struct {
	Title        string  `json:"title"`
	Text         string  `json:"text"`
	Category     string  `json:"category"`
	Manufacturer string  `json:"manufacturer"`
	PriceMin     float64 `json:"price_min"`
	PriceMax     float64 `json:"price_max"`
	UpdatedAt    string  `json:"updated_at"`
}

// Index is a bleve-backed BM25 keyword index. Match reports ranks as
// negated scores, so a more negative rank means a better match; the
// fusion layer normalizes that convention.
type Index struct {
	idx bleve.Index
}

func buildMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	exactField := bleve.NewTextFieldMapping()
	exactField.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", textField)
	doc.AddFieldMappingsAt("text", textField)
	doc.AddFieldMappingsAt("category", exactField)
	doc.AddFieldMappingsAt("manufacturer", exactField)
	doc.AddFieldMappingsAt("updated_at", exactField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Open opens the index at path, creating it on first use.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return &Index{idx: idx}, nil
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}
	idx, err = bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// OpenMemory builds an in-memory index, used in tests and ephemeral runs.
func OpenMemory() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create in-memory keyword index: %w", err)
	}
	return &Index{idx: idx}, nil
}

func (i *Index) Close() error { return i.idx.Close() }

func (i *Index) Index(_ context.Context, item domain.EmbeddingItem) error {
	doc := document{
		Title:        item.Title,
		Text:         item.Text,
		Category:     item.Metadata.Category,
		Manufacturer: item.Metadata.Manufacturer,
		PriceMin:     item.Metadata.PriceMin,
		PriceMax:     item.Metadata.PriceMax,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := i.idx.Index(item.ID, doc); err != nil {
		return fmt.Errorf("index keyword doc %s: %w", item.ID, err)
	}
	return nil
}

func (i *Index) DeleteKeyword(_ context.Context, ids []string) error {
	batch := i.idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := i.idx.Batch(batch); err != nil {
		return fmt.Errorf("delete keyword docs: %w", err)
	}
	return nil
}

func (i *Index) Match(_ context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.SourceResult, error) {
	titleQuery := bleve.NewMatchQuery(query)
	titleQuery.SetField("title")
	titleQuery.SetBoost(2)
	textQuery := bleve.NewMatchQuery(query)
	textQuery.SetField("text")

	var root = bleve.NewConjunctionQuery(bleve.NewDisjunctionQuery(titleQuery, textQuery))
	if filter.Category != "" {
		q := bleve.NewTermQuery(filter.Category)
		q.SetField("category")
		root.AddQuery(q)
	}
	if filter.Manufacturer != "" {
		q := bleve.NewTermQuery(filter.Manufacturer)
		q.SetField("manufacturer")
		root.AddQuery(q)
	}

	req := bleve.NewSearchRequestOptions(root, limit, 0, false)
	req.Fields = []string{"title", "text", "category", "manufacturer", "price_min", "price_max", "updated_at"}

	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	out := make([]domain.SourceResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		result := domain.SourceResult{
			ID:    hit.ID,
			Title: fieldString(hit.Fields, "title"),
			Text:  fieldString(hit.Fields, "text"),
			Rank:  -hit.Score,
			Metadata: domain.ItemMetadata{
				Category:     fieldString(hit.Fields, "category"),
				Manufacturer: fieldString(hit.Fields, "manufacturer"),
				PriceMin:     fieldFloat(hit.Fields, "price_min"),
				PriceMax:     fieldFloat(hit.Fields, "price_max"),
			},
		}
		if ts, err := time.Parse(time.RFC3339, fieldString(hit.Fields, "updated_at")); err == nil {
			result.UpdatedAt = ts
		}
		out = append(out, result)
	}
	return out, nil
}

func fieldString(fields map[string]interface{}, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

func fieldFloat(fields map[string]interface{}, key string) float64 {
	if f, ok := fields[key].(float64); ok {
		return f
	}
	return 0
}
