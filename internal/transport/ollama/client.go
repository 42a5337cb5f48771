// Package ollama talks to a local Ollama server through langchaingo for
// embeddings and answer generation.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

// DefaultURL is the Ollama server address when none is configured.
const DefaultURL = "http://localhost:11434"

const provider = "ollama"

// Config holds the Ollama connection and sampling settings.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

type client struct {
	llm     *lcollama.LLM
	baseURL string
	model   string
	http    *http.Client
	logger  *zap.Logger
}

func newClient(cfg *Config) (*client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Minute}
	}
	llm, err := lcollama.New(
		lcollama.WithServerURL(baseURL),
		lcollama.WithModel(cfg.Model),
		lcollama.WithHTTPClient(hc),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama: create client: %w", err)
	}
	return &client{llm: llm, baseURL: baseURL, model: cfg.Model, http: hc, logger: cfg.Logger}, nil
}

// HealthCheck pings the tags endpoint.
func (c *client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: connect %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: tags returned status %d", resp.StatusCode)
	}
	return nil
}

// Embedder produces embeddings with a local Ollama embedding model.
type Embedder struct {
	*client
}

// NewEmbedder creates an Ollama embedder.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: c}, nil
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

// BatchEmbed embeds texts in input order. Ollama reports no token usage.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	vectors, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		metrics.ObserveEmbeddingCall(provider, e.model, metrics.EmbedAPIError, time.Since(start), 0)
		return domain.BatchEmbeddingResult{}, fmt.Errorf("ollama embed: %w: %w", domain.ErrEmbeddingFailure, err)
	}
	if len(vectors) != len(texts) {
		metrics.ObserveEmbeddingCall(provider, e.model, metrics.EmbedCountMismatch, time.Since(start), 0)
		return domain.BatchEmbeddingResult{}, fmt.Errorf("ollama embed: got %d vectors for %d inputs: %w",
			len(vectors), len(texts), domain.ErrEmbeddingFailure)
	}

	metrics.ObserveEmbeddingCall(provider, e.model, metrics.EmbedOK, time.Since(start), 0)
	return domain.BatchEmbeddingResult{Embeddings: vectors}, nil
}

// Generator answers prompts with a local Ollama chat model.
type Generator struct {
	*client
	temperature float64
	maxTokens   int
}

// NewGenerator creates an Ollama generator.
func NewGenerator(cfg *Config) (*Generator, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Generator{client: c, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}, nil
}

// Generate runs one completion over the prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}

	start := time.Now()
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w: %w", domain.ErrGeneratorFailure, err)
	}
	g.logger.Debug("Generated answer",
		zap.String("model", g.model),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}
