// Package observability wires OTLP trace export into the Genkit
// TracerProvider. Every pipeline run, persona turn and index operation
// already produces Genkit spans; this package ships them to a collector.
//
// Traces are exported over OTLP HTTP to a local collector (an
// OpenTelemetry Collector or a vendor agent listening on
// localhost:4318). The collector handles authentication, buffering and
// forwarding, so the process itself never holds backend credentials.
//
// Configuration (~/.insight/config.yaml):
//
//	otlp_endpoint: "localhost:4318"
//	environment: "dev"
//	service_name: "insight"
//
// An empty otlp_endpoint disables export entirely.
package observability

import (
	"context"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/genius-labs/insight/internal/log"
)

// Config for OTLP trace export.
type Config struct {
	// Endpoint is the collector's OTLP HTTP endpoint. Empty disables
	// trace export.
	Endpoint string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// ServiceName is the service name reported on every span.
	ServiceName string
}

// Setup registers an OTLP exporter with Genkit's TracerProvider and
// returns a shutdown function that flushes pending spans. Export
// failures degrade gracefully: the returned shutdown is always safe to
// call and Setup only errs on misconfiguration, never on an
// unreachable collector.
func Setup(ctx context.Context, cfg Config, logger log.Logger) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if cfg.Endpoint == "" {
		logger.Debug("trace export disabled, no collector endpoint")
		return noop, nil
	}

	// Genkit's TracerProvider reads service identity from the OTEL env
	// vars. Set here, once, before any goroutine spawns.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // collector is local, TLS terminates there
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return noop, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("trace export enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown, nil
}
