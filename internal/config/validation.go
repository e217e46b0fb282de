package config

import (
	"fmt"
	"strings"
)

// Temperature and token bounds for generation models.
const (
	MinTemperature float32 = 0.0
	MaxTemperature float32 = 2.0
	MinMaxTokens           = 1
	MaxMaxTokens           = 65536
	MaxTopK                = 50
)

// Validate checks configuration integrity. It is called by Load and must
// pass before any component is constructed (fail-fast).
//
// Tenant cross-field integrity (duplicate domains, duplicate index
// handles) is enforced by tenant.NewRegistry, which owns those
// invariants; Validate only checks per-field sanity.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	if c.Temperature < MinTemperature || c.Temperature > MaxTemperature {
		return fmt.Errorf("%w: %.2f not in [%.1f, %.1f]",
			ErrInvalidTemperature, c.Temperature, MinTemperature, MaxTemperature)
	}
	if c.MaxTokens < MinMaxTokens || c.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("%w: %d not in [%d, %d]",
			ErrInvalidMaxTokens, c.MaxTokens, MinMaxTokens, MaxMaxTokens)
	}
	if c.LLMRequestsPerSecond < 0 {
		return fmt.Errorf("%w: llm_requests_per_second must not be negative", ErrInvalidRateLimit)
	}

	if c.RetrievalMinScore < 0 || c.RetrievalMinScore > 1 {
		return fmt.Errorf("%w: min score %.3f not in [0, 1]", ErrInvalidScoreCutoff, c.RetrievalMinScore)
	}
	if c.RetrievalRelaxedScore < 0 || c.RetrievalRelaxedScore > 1 {
		return fmt.Errorf("%w: relaxed score %.3f not in [0, 1]", ErrInvalidScoreCutoff, c.RetrievalRelaxedScore)
	}
	if c.RetrievalRelaxedScore > c.RetrievalMinScore {
		return fmt.Errorf("%w: relaxed cutoff %.3f exceeds strict cutoff %.3f",
			ErrInvalidScoreCutoff, c.RetrievalRelaxedScore, c.RetrievalMinScore)
	}
	if c.RetrievalTopK < 1 || c.RetrievalTopK > MaxTopK {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidTopK, c.RetrievalTopK, MaxTopK)
	}
	if c.RetrievalTimeoutSecs <= 0 {
		return fmt.Errorf("%w: retrieval_timeout_seconds must be positive", ErrInvalidTimeout)
	}
	if c.GenerationTimeoutSecs <= 0 {
		return fmt.Errorf("%w: generation_timeout_seconds must be positive", ErrInvalidTimeout)
	}
	if c.ImageTimeoutSecs <= 0 {
		return fmt.Errorf("%w: image_timeout_seconds must be positive", ErrInvalidTimeout)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d not in [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}

	if len(c.Tenants) == 0 {
		return ErrNoTenants
	}

	return nil
}
