// Package pipeline turns a tenant-scoped query into a generated answer
// under one of three grounding modes. The mode decides what gets
// retrieved, how the model is instructed, and how freely it samples.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/genius-labs/insight/internal/log"
	"github.com/genius-labs/insight/internal/retrieval"
	"github.com/genius-labs/insight/internal/tenant"
)

// Exchange is one prior question/answer pair in a conversation.
type Exchange struct {
	Prompt   string
	Response string
}

// Query is one generation request bound to a tenant.
type Query struct {
	Tenant *tenant.Tenant
	Mode   Mode
	Text   string
	// History carries prior exchanges for conversational continuity.
	History []Exchange
	// PersonaDirectives, when non-empty, is appended to the mode
	// instructions. Used by persona sessions to re-assert character.
	PersonaDirectives string
}

// GenerationResult is the answer plus the passages that grounded it.
type GenerationResult struct {
	Text     string
	Passages []retrieval.Passage
	Mode     Mode
}

// Retriever is the retrieval capability the pipeline consumes.
type Retriever interface {
	Retrieve(ctx context.Context, ten *tenant.Tenant, query string, topK int, minScore float64, prov retrieval.Provenance) ([]retrieval.Passage, error)
}

// GenerateRequest is one model call.
type GenerateRequest struct {
	Instructions string
	Context      []retrieval.Passage
	History      []Exchange
	Text         string
	Temperature  float32
}

// Generator is the model capability the pipeline consumes.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Options tune retrieval depth and generation limits.
type Options struct {
	// TopK is the number of passages requested per retrieval pass.
	TopK int
	// StrictScore is the similarity cutoff for grounding passages.
	StrictScore float64
	// RelaxedScore is the lower cutoff used by the hybrid second pass.
	RelaxedScore float64
	// Timeout bounds each model call.
	Timeout time.Duration
	// Retry controls transient-failure retries.
	Retry RetryConfig
}

// Pipeline runs mode-dependent retrieval and generation.
type Pipeline struct {
	retriever Retriever
	generator Generator
	opts      Options
	logger    log.Logger
}

// New creates a Pipeline. logger may be nil.
func New(retriever Retriever, generator Generator, opts Options, logger log.Logger) (*Pipeline, error) {
	if retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if opts.TopK <= 0 {
		return nil, fmt.Errorf("invalid topK %d", opts.TopK)
	}
	if opts.RelaxedScore > opts.StrictScore {
		return nil, fmt.Errorf("relaxed cutoff %.2f exceeds strict cutoff %.2f", opts.RelaxedScore, opts.StrictScore)
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("invalid generation timeout %v", opts.Timeout)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{
		retriever: retriever,
		generator: generator,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Run executes one query end to end: retrieve per the mode policy,
// build instructions, generate. Retrieval failures propagate unchanged
// so an answer is never silently produced without its grounding.
func (p *Pipeline) Run(ctx context.Context, q Query) (*GenerationResult, error) {
	if q.Tenant == nil {
		return nil, ErrNilTenant
	}
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}
	if q.Mode < ModePure || q.Mode > ModeHybrid {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(q.Mode))
	}

	passages, err := p.gather(ctx, q)
	if err != nil {
		return nil, err
	}

	text, err := p.generate(ctx, GenerateRequest{
		Instructions: instructionsFor(q.Mode, q.PersonaDirectives),
		Context:      passages,
		History:      q.History,
		Text:         q.Text,
		Temperature:  q.Mode.Temperature(),
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("query completed",
		"tenant_id", q.Tenant.ID,
		"mode", q.Mode.String(),
		"passages", len(passages))

	return &GenerationResult{
		Text:     text,
		Passages: passages,
		Mode:     q.Mode,
	}, nil
}

// gather retrieves passages per the mode policy. Hybrid runs a second
// relaxed pass and merges it behind the strict one.
func (p *Pipeline) gather(ctx context.Context, q Query) ([]retrieval.Passage, error) {
	strict, err := p.retriever.Retrieve(ctx, q.Tenant, q.Text, p.opts.TopK, p.opts.StrictScore, retrieval.ProvenanceStrict)
	if err != nil {
		return nil, err
	}
	if q.Mode != ModeHybrid {
		return strict, nil
	}

	relaxed, err := p.retriever.Retrieve(ctx, q.Tenant, q.Text, p.opts.TopK, p.opts.RelaxedScore, retrieval.ProvenanceRelaxed)
	if err != nil {
		return nil, err
	}
	return mergeHybrid(strict, relaxed), nil
}

// mergeHybrid combines the two hybrid passes. Strict passages keep
// their original order and always precede relaxed-only ones; a document
// found by both passes appears once, with strict provenance. Provenance
// order decides placement, never score.
func mergeHybrid(strict, relaxed []retrieval.Passage) []retrieval.Passage {
	merged := make([]retrieval.Passage, 0, len(strict)+len(relaxed))
	seen := make(map[string]struct{}, len(strict))
	for _, p := range strict {
		if _, dup := seen[p.DocumentID]; dup {
			continue
		}
		seen[p.DocumentID] = struct{}{}
		merged = append(merged, p)
	}
	for _, p := range relaxed {
		if _, dup := seen[p.DocumentID]; dup {
			continue
		}
		seen[p.DocumentID] = struct{}{}
		merged = append(merged, p)
	}
	return merged
}

// generate calls the model with a per-call deadline and at most one
// retry on a transient provider failure.
func (p *Pipeline) generate(ctx context.Context, req GenerateRequest) (string, error) {
	var lastErr error
	delay := p.opts.Retry.InitialInterval
	if delay <= 0 {
		delay = DefaultRetryConfig().InitialInterval
	}

	for attempt := 0; attempt <= p.opts.Retry.MaxRetries; attempt++ {
		genCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		text, err := p.generator.Generate(genCtx, req)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err

		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		if !retryableError(err) {
			return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
		if attempt == p.opts.Retry.MaxRetries {
			break
		}

		p.logger.Debug("retrying after transient error",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrGenerationFailed, ctx.Err())
		case <-time.After(delay):
			if next := delay * 2; next < p.opts.Retry.MaxInterval {
				delay = next
			} else {
				delay = p.opts.Retry.MaxInterval
			}
		}
	}
	return "", fmt.Errorf("%w after %d retries: %v", ErrGenerationFailed, p.opts.Retry.MaxRetries, lastErr)
}
