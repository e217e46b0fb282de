// Package app provides application initialization and dependency
// injection. Setup builds the full component graph (database pool,
// Genkit, index store, pipeline, persona engine, orchestrator) and App
// owns its teardown.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genius-labs/insight/internal/config"
	"github.com/genius-labs/insight/internal/index"
	"github.com/genius-labs/insight/internal/log"
	"github.com/genius-labs/insight/internal/orchestrator"
	"github.com/genius-labs/insight/internal/persona"
	"github.com/genius-labs/insight/internal/pipeline"
	"github.com/genius-labs/insight/internal/tenant"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Registry     *tenant.Registry
	Index        *index.Store
	Pipeline     *pipeline.Pipeline
	Engine       *persona.Engine
	Orchestrator *orchestrator.Orchestrator

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// Close gracefully shuts down all resources. Safe to call on a
// partially initialized App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.cancel != nil {
		a.cancel()
	}

	// Flush pending spans before the process exits.
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil && a.Logger != nil {
			a.Logger.Warn("shutting down tracer provider", "error", err)
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		if a.Logger != nil {
			a.Logger.Info("database pool closed")
		}
	}

	return nil
}
