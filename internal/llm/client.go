// Package llm adapts Genkit text generation to the pipeline's
// generator contract, with rate limiting and a circuit breaker around
// the provider call.
package llm

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/genius-labs/insight/internal/log"
	"github.com/genius-labs/insight/internal/pipeline"
	"github.com/genius-labs/insight/internal/retrieval"
)

// Config tunes the client.
type Config struct {
	// ModelName is the Genkit model reference, e.g. "googleai/gemini-2.5-flash".
	ModelName string
	// MaxTokens caps output length. Zero leaves the provider default.
	MaxTokens int
	// RequestsPerSecond throttles provider calls. Zero disables throttling.
	RequestsPerSecond float64
	// Burst is the limiter burst size. Defaults to 1 when throttling is on.
	Burst int
	// Breaker configures the circuit breaker.
	Breaker CircuitBreakerConfig
}

// Client calls the model through Genkit.
type Client struct {
	g         *genkit.Genkit
	modelName string
	maxTokens int
	limiter   *rate.Limiter
	breaker   *CircuitBreaker
	logger    log.Logger
}

// New creates a Client. logger may be nil.
func New(g *genkit.Genkit, cfg Config, logger log.Logger) (*Client, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		g:         g,
		modelName: cfg.ModelName,
		maxTokens: cfg.MaxTokens,
		limiter:   limiter,
		breaker:   NewCircuitBreaker(cfg.Breaker),
		logger:    logger,
	}, nil
}

// Generate runs one model call. History becomes alternating user/model
// messages, retrieved passages travel as documents, and the mode
// temperature goes through the provider config.
func (c *Client) Generate(ctx context.Context, req pipeline.GenerateRequest) (string, error) {
	if err := c.breaker.Allow(); err != nil {
		return "", err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(c.modelName),
		ai.WithSystem(req.Instructions),
		ai.WithMessages(buildMessages(req.History, req.Text)...),
		ai.WithConfig(c.providerConfig(req.Temperature)),
	}
	if docs := buildDocs(req.Context); len(docs) > 0 {
		opts = append(opts, ai.WithDocs(docs...))
	}

	response, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		c.breaker.Failure()
		return "", fmt.Errorf("generate: %w", err)
	}
	c.breaker.Success()

	return response.Text(), nil
}

// BreakerState exposes the circuit state for diagnostics.
func (c *Client) BreakerState() CircuitState {
	return c.breaker.State()
}

func (c *Client) providerConfig(temperature float32) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if c.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.maxTokens)
	}
	return cfg
}

// buildMessages converts prior exchanges plus the current text into
// chat messages.
func buildMessages(history []pipeline.Exchange, text string) []*ai.Message {
	messages := make([]*ai.Message, 0, len(history)*2+1)
	for _, ex := range history {
		messages = append(messages,
			ai.NewUserMessage(ai.NewTextPart(ex.Prompt)),
			ai.NewModelMessage(ai.NewTextPart(ex.Response)),
		)
	}
	return append(messages, ai.NewUserMessage(ai.NewTextPart(text)))
}

// buildDocs converts passages into Genkit documents, carrying citation
// metadata and provenance.
func buildDocs(passages []retrieval.Passage) []*ai.Document {
	docs := make([]*ai.Document, 0, len(passages))
	for _, p := range passages {
		metadata := map[string]any{
			"document_id": p.DocumentID,
			"score":       p.Score,
			"provenance":  p.Provenance.String(),
		}
		if p.DocumentName != "" {
			metadata["document_name"] = p.DocumentName
		}
		if p.StudyType != "" {
			metadata["study_type"] = p.StudyType
		}
		if p.Year != "" {
			metadata["year"] = p.Year
		}
		docs = append(docs, ai.DocumentFromText(p.Content, metadata))
	}
	return docs
}
