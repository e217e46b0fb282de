package config

import (
	"errors"
	"strings"
	"testing"
)

// validConfig returns a Config that passes Validate. Tests mutate single
// fields to exercise individual checks.
func validConfig() *Config {
	return &Config{
		ModelName:             "gemini-2.5-flash",
		EmbedderModel:         "gemini-embedding-001",
		ImageModel:            "imagen-3.0-generate-002",
		Temperature:           0.7,
		MaxTokens:             2048,
		RetrievalMinScore:     0.45,
		RetrievalRelaxedScore: 0.20,
		RetrievalTopK:         5,
		RetrievalTimeoutSecs:  10,
		GenerationTimeoutSecs: 60,
		ImageTimeoutSecs:      120,
		PostgresHost:          "localhost",
		PostgresPort:          5432,
		PostgresUser:          "insight",
		PostgresPassword:      "secret",
		PostgresDBName:        "insight",
		PostgresSSLMode:       "disable",
		Tenants: []TenantConfig{
			{ID: "tigo-honduras", Name: "Tigo Honduras", IndexHandle: "tigo-insights",
				Domains: []string{"tigo-honduras.com"}},
		},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateFieldChecks(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"empty model name", func(c *Config) { c.ModelName = "  " }, ErrInvalidModelName},
		{"empty embedder", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"negative rate limit", func(c *Config) { c.LLMRequestsPerSecond = -1 }, ErrInvalidRateLimit},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }, ErrInvalidTemperature},
		{"max tokens zero", func(c *Config) { c.MaxTokens = 0 }, ErrInvalidMaxTokens},
		{"min score above one", func(c *Config) { c.RetrievalMinScore = 1.2 }, ErrInvalidScoreCutoff},
		{"relaxed above strict", func(c *Config) { c.RetrievalRelaxedScore = 0.9 }, ErrInvalidScoreCutoff},
		{"topK zero", func(c *Config) { c.RetrievalTopK = 0 }, ErrInvalidTopK},
		{"retrieval timeout zero", func(c *Config) { c.RetrievalTimeoutSecs = 0 }, ErrInvalidTimeout},
		{"generation timeout negative", func(c *Config) { c.GenerationTimeoutSecs = -1 }, ErrInvalidTimeout},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"postgres port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"no tenants", func(c *Config) { c.Tenants = nil }, ErrNoTenants},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNilConfig(t *testing.T) {
	var c *Config
	if !errors.Is(c.Validate(), ErrConfigNil) {
		t.Error("nil config should return ErrConfigNil")
	}
}

func TestMarshalJSONMasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super_secret_password_123"

	data, err := cfg.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if strings.Contains(string(data), "super_secret_password_123") {
		t.Error("password leaked into JSON output")
	}
	if !strings.Contains(string(data), maskedValue) {
		t.Error("expected masked placeholder in JSON output")
	}
}

func TestStringMasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "another_secret_value"

	if strings.Contains(cfg.String(), "another_secret_value") {
		t.Error("password leaked via String()")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, got string)
	}{
		{"empty stays empty", "", func(t *testing.T, got string) {
			if got != "" {
				t.Errorf("got %q, want empty", got)
			}
		}},
		{"short fully masked", "abc123", func(t *testing.T, got string) {
			if got != maskedValue {
				t.Errorf("got %q, want full mask", got)
			}
		}},
		{"long keeps edges", "my_long_secret_key", func(t *testing.T, got string) {
			if !strings.HasPrefix(got, "my") || !strings.HasSuffix(got, "ey") {
				t.Errorf("got %q, want my<mask>ey shape", got)
			}
			if strings.Contains(got, "long_secret") {
				t.Errorf("middle leaked: %q", got)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, maskSecret(tt.input))
		})
	}
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "pa ss'word"

	dsn := cfg.PostgresConnectionString()
	if !strings.Contains(dsn, "host=localhost") {
		t.Errorf("missing host, got %q", dsn)
	}
	if !strings.Contains(dsn, `password='pa ss\'word'`) {
		t.Errorf("password not quoted, got %q", dsn)
	}
}

func TestPostgresURLEncodesCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresUser = "user@odd"
	cfg.PostgresPassword = "p:ss/word"

	u := cfg.PostgresURL()
	if !strings.HasPrefix(u, "postgres://") {
		t.Errorf("unexpected scheme: %q", u)
	}
	if strings.Contains(u, "p:ss/word") {
		t.Errorf("raw password in URL: %q", u)
	}
	if !strings.Contains(u, "sslmode=disable") {
		t.Errorf("missing sslmode: %q", u)
	}
}
