package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genius-labs/insight/db"
	"github.com/genius-labs/insight/internal/config"
	"github.com/genius-labs/insight/internal/imagegen"
	"github.com/genius-labs/insight/internal/index"
	"github.com/genius-labs/insight/internal/llm"
	"github.com/genius-labs/insight/internal/log"
	"github.com/genius-labs/insight/internal/observability"
	"github.com/genius-labs/insight/internal/orchestrator"
	"github.com/genius-labs/insight/internal/persona"
	"github.com/genius-labs/insight/internal/pipeline"
	"github.com/genius-labs/insight/internal/retrieval"
	"github.com/genius-labs/insight/internal/tenant"
)

// apiKeyEnv is read by the Genkit GoogleAI plugin and by the direct
// image generation client.
const apiKeyEnv = "GEMINI_API_KEY"

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.otelShutdown = shutdown

	registry, err := tenant.NewRegistry(cfg.Tenants, logger)
	if err != nil {
		return nil, fmt.Errorf("loading tenant registry: %w", err)
	}
	a.Registry = registry

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Index = index.New(index.NewQueries(pool), embedder, logger)

	pipe, err := providePipeline(cfg, g, a.Index, logger)
	if err != nil {
		return nil, err
	}
	a.Pipeline = pipe

	engine, err := persona.NewEngine(pipe, persona.Config{Mode: pipeline.ModeHybrid}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating persona engine: %w", err)
	}
	a.Engine = engine

	images, err := provideImages(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(registry, pipe, engine, a.Index, images, logger)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	a.Orchestrator = orch

	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	return a, nil
}

// provideDBPool runs migrations and creates the PostgreSQL pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the GoogleAI plugin. Tracing
// must already be set up so the TracerProvider is ready.
func provideGenkit(ctx context.Context, logger log.Logger) (*genkit.Genkit, error) {
	if os.Getenv(apiKeyEnv) == "" {
		return nil, fmt.Errorf("%s is not set", apiKeyEnv)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	logger.Info("initialized Genkit with googleai provider")
	return g, nil
}

// providePipeline assembles retrieval, the model client and the
// generation pipeline from configuration.
func providePipeline(cfg *config.Config, g *genkit.Genkit, store *index.Store, logger log.Logger) (*pipeline.Pipeline, error) {
	adapter, err := retrieval.NewAdapter(store,
		time.Duration(cfg.RetrievalTimeoutSecs)*time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retrieval adapter: %w", err)
	}

	client, err := llm.New(g, llm.Config{
		ModelName:         "googleai/" + cfg.ModelName,
		MaxTokens:         cfg.MaxTokens,
		RequestsPerSecond: cfg.LLMRequestsPerSecond,
		Breaker:           llm.DefaultCircuitBreakerConfig(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	pipe, err := pipeline.New(adapter, client, pipeline.Options{
		TopK:         cfg.RetrievalTopK,
		StrictScore:  cfg.RetrievalMinScore,
		RelaxedScore: cfg.RetrievalRelaxedScore,
		Timeout:      time.Duration(cfg.GenerationTimeoutSecs) * time.Second,
		Retry:        pipeline.DefaultRetryConfig(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}
	return pipe, nil
}

// provideImages creates the image generation client. Returns nil when
// no API key is available; the orchestrator rejects the op instead.
func provideImages(ctx context.Context, cfg *config.Config, logger log.Logger) (imagegen.Generator, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		logger.Warn("image generation disabled, no API key")
		return nil, nil
	}

	img, err := imagegen.NewImagen(ctx, apiKey, cfg.ImageModel,
		time.Duration(cfg.ImageTimeoutSecs)*time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("creating image client: %w", err)
	}
	return img, nil
}
