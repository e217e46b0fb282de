// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.insight/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, temperature, max tokens, embedder
//   - Storage: PostgreSQL connection for the vector index
//   - Retrieval: score cutoffs, topK, per-call timeouts (tunable; the
//     defaults are conservative and documented on each field)
//   - Tenants: the isolated tenant definitions (see tenants.go)
//   - Observability: OTLP trace export
//
// Security: secrets are never logged; MarshalJSON masks sensitive fields.
// Validation is fail-fast: Load returns an error rather than serving with
// a broken or ambiguous configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration failures, checked with errors.Is.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the generation model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidRateLimit indicates a negative provider rate limit.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidScoreCutoff indicates a relevance cutoff is out of [0,1]
	// or the relaxed cutoff exceeds the strict one.
	ErrInvalidScoreCutoff = errors.New("invalid relevance score cutoff")

	// ErrInvalidTopK indicates the retrieval topK is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top_k")

	// ErrInvalidTimeout indicates a per-call timeout is non-positive.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrNoTenants indicates no tenant is configured. The process refuses
	// to start without at least one tenant: every operation requires one.
	ErrNoTenants = errors.New("no tenants configured")
)

// Default model identifiers.
const (
	// DefaultModelName is the default generation model.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultEmbedderModel is the default embedder. gemini-embedding-001
	// supports truncation to 768 dimensions via OutputDimensionality,
	// matching the pgvector schema (index.VectorDimension).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultImageModel is the default image generation model.
	DefaultImageModel = "imagen-3.0-generate-002"
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secrets, update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	ImageModel    string  `mapstructure:"image_model" json:"image_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`

	// LLMRequestsPerSecond throttles calls to the generation provider.
	// Zero disables throttling entirely.
	LLMRequestsPerSecond float64 `mapstructure:"llm_requests_per_second" json:"llm_requests_per_second"`

	// Retrieval tunables. The score cutoffs and timeouts are deliberately
	// configuration, not constants: the right values depend on the
	// embedding model and corpus.
	RetrievalMinScore     float64 `mapstructure:"retrieval_min_score" json:"retrieval_min_score"`
	RetrievalRelaxedScore float64 `mapstructure:"retrieval_relaxed_score" json:"retrieval_relaxed_score"`
	RetrievalTopK         int     `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	RetrievalTimeoutSecs  int     `mapstructure:"retrieval_timeout_seconds" json:"retrieval_timeout_seconds"`
	GenerationTimeoutSecs int     `mapstructure:"generation_timeout_seconds" json:"generation_timeout_seconds"`
	ImageTimeoutSecs      int     `mapstructure:"image_timeout_seconds" json:"image_timeout_seconds"`

	// Storage configuration for the vector index
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability configuration
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `mapstructure:"environment" json:"environment"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`

	// Tenant definitions (see tenants.go). Loaded once at startup;
	// uniqueness of domains and index handles is enforced by
	// tenant.NewRegistry before the process serves anything.
	Tenants []TenantConfig `mapstructure:"tenants" json:"tenants"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".insight")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing file is fine, defaults apply. Anything else is fatal.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("image_model", DefaultImageModel)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("llm_requests_per_second", 2.0)

	// Retrieval defaults. The strict cutoff keeps only passages with
	// clear relevance; the relaxed cutoff widens hybrid mode context.
	viper.SetDefault("retrieval_min_score", 0.45)
	viper.SetDefault("retrieval_relaxed_score", 0.20)
	viper.SetDefault("retrieval_top_k", 5)
	viper.SetDefault("retrieval_timeout_seconds", 10)
	viper.SetDefault("generation_timeout_seconds", 60)
	viper.SetDefault("image_timeout_seconds", 120)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "insight")
	viper.SetDefault("postgres_password", "insight_dev_password")
	viper.SetDefault("postgres_db_name", "insight")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Observability defaults
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("environment", "dev")
	viper.SetDefault("service_name", "insight")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; its presence
// is checked at app setup, not here.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "INSIGHT_MODEL_NAME")
	mustBind("embedder_model", "INSIGHT_EMBEDDER_MODEL")
	mustBind("postgres_password", "INSIGHT_POSTGRES_PASSWORD")
	mustBind("otlp_endpoint", "INSIGHT_OTLP_ENDPOINT")
	mustBind("environment", "INSIGHT_ENV")
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep two characters on each side for debuggability.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// PostgresConnectionString returns the PostgreSQL DSN for pgx.
// Password is single-quoted to survive special characters.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresUser,
		quoteDSNValue(c.PostgresPassword),
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// PostgresURL returns the PostgreSQL URL for golang-migrate.
func (c *Config) PostgresURL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     c.PostgresDBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.PostgresSSLMode),
	}
	return u.String()
}

// quoteDSNValue quotes a keyword/value DSN value per libpq rules.
func quoteDSNValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
