package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/kb-retrieval/internal/infrastructure/resilience"
)

// Client talks to a local Ollama server. One instance backs both the
// embedding provider and the completion backend.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func New(baseURL, genModel, embedModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embedder adapts the client to the embedding port. It maps transport
// errors to the domain taxonomy and deliberately does not retry: the
// batch embedding layer owns the retry/backoff policy, and a second
// retry loop underneath it would multiply attempts.
type Embedder struct {
	client   *Client
	maxInput int
}

func NewEmbedder(client *Client, maxInput int) *Embedder {
	if maxInput <= 0 {
		maxInput = 8192
	}
	return &Embedder{client: client, maxInput: maxInput}
}

func (e *Embedder) MaxInputLength() int { return e.maxInput }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, toDomainError("embed", err)
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, toDomainError("embed", fmt.Errorf("empty embedding result"))
	}
	return response.Embeddings[0], nil
}

// Generator adapts the client to the completion port. Calls run through
// the resilience executor: completions are interactive one-offs with no
// upstream retry layer.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	request := map[string]any{
		"model":  g.client.genModel,
		"prompt": userPrompt,
		"system": systemPrompt,
		"stream": false,
		"options": map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}

	var response struct {
		Response string `json:"response"`
	}
	call := func(ctx context.Context) error {
		return g.client.postJSON(ctx, "/api/generate", request, &response, "generate")
	}

	var err error
	if g.client.executor != nil {
		err = g.client.executor.Execute(ctx, "ollama_generate", call, classifyTransportError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", toDomainError("generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}
