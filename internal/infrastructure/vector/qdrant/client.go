package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

// Client is a Qdrant-backed vector index over the HTTP API. Point IDs
// are derived deterministically from item IDs so upserts are idempotent
// and deletes work without an ID mapping table.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// pointID maps an item ID onto the UUID space Qdrant accepts.
func pointID(itemID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(itemID)).String()
}

func (c *Client) Upsert(ctx context.Context, id string, vector []float32, meta domain.ItemMetadata, text string) error {
	if id == "" || len(vector) == 0 {
		return fmt.Errorf("qdrant upsert: empty id or vector")
	}
	if err := c.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	payload := map[string]any{
		"item_id":    id,
		"text":       text,
		"indexed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if meta.Manufacturer != "" {
		payload["manufacturer"] = meta.Manufacturer
	}
	if meta.Category != "" {
		payload["category"] = meta.Category
	}
	if meta.PriceMin > 0 {
		payload["price_min"] = meta.PriceMin
	}
	if meta.PriceMax > 0 {
		payload["price_max"] = meta.PriceMax
	}
	if title, ok := meta.Extra["title"]; ok {
		payload["title"] = title
	}

	reqBody := map[string]any{
		"points": []map[string]any{{
			"id":      pointID(id),
			"vector":  vector,
			"payload": payload,
		}},
	}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPut, url, reqBody, nil, "upsert")
}

func (c *Client) Query(ctx context.Context, vector []float32, k int, filter domain.SearchFilter) ([]domain.SourceResult, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if must := filterConditions(filter); len(must) > 0 {
		reqBody["filter"] = map[string]any{"must": must}
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.SourceResult, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		result := domain.SourceResult{
			ID:         stringPayload(r.Payload, "item_id"),
			Title:      stringPayload(r.Payload, "title"),
			Text:       stringPayload(r.Payload, "text"),
			Similarity: r.Score,
			Metadata: domain.ItemMetadata{
				Manufacturer: stringPayload(r.Payload, "manufacturer"),
				Category:     stringPayload(r.Payload, "category"),
				PriceMin:     floatPayload(r.Payload, "price_min"),
				PriceMax:     floatPayload(r.Payload, "price_max"),
			},
		}
		if ts, err := time.Parse(time.RFC3339, stringPayload(r.Payload, "indexed_at")); err == nil {
			result.UpdatedAt = ts
		}
		out = append(out, result)
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, 0, len(ids))
	for _, id := range ids {
		points = append(points, pointID(id))
	}
	reqBody := map[string]any{"points": points}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPost, url, reqBody, nil, "delete")
}

func (c *Client) Count(ctx context.Context) (int, error) {
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, map[string]any{"exact": true}, &countResp, "count"); err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

func filterConditions(filter domain.SearchFilter) []map[string]any {
	var must []map[string]any
	if filter.Category != "" {
		must = append(must, map[string]any{
			"key":   "category",
			"match": map[string]any{"value": filter.Category},
		})
	}
	if filter.Manufacturer != "" {
		must = append(must, map[string]any{
			"key":   "manufacturer",
			"match": map[string]any{"value": filter.Manufacturer},
		})
	}
	return must
}

func (c *Client) do(ctx context.Context, method, url string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrUnavailable, "qdrant "+operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
		}
		return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.do(ctx, http.MethodPut, url, reqBody, nil, "ensure collection")
	if err != nil {
		// 409 means the collection already exists (depends on version).
		if strings.Contains(err.Error(), "409") || strings.Contains(err.Error(), "Conflict") {
			c.markCollectionEnsured(vectorSize)
			return nil
		}
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func floatPayload(payload map[string]any, key string) float64 {
	if v, ok := payload[key].(float64); ok {
		return v
	}
	return 0
}
