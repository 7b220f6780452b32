// Package observability installs the OpenTelemetry trace and log pipelines
// exported over OTLP/HTTP.
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	DefaultTracesPath = "/v1/traces"
	DefaultLogsPath   = "/v1/logs"
	exportTimeout     = 30 * time.Second
	maxQueueSize      = 2048
)

// Config describes the OTLP collector. An empty Endpoint disables export.
type Config struct {
	Endpoint       string
	TracesPath     string
	LogsPath       string
	Headers        map[string]string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
}

// Enabled reports whether an exporter endpoint is configured.
func (c Config) Enabled() bool { return c.Endpoint != "" }

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

func newResource(cfg Config) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "freshcore"
	}
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(name),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}

// SetupTracing installs a batching OTLP TracerProvider as the global provider
// together with the W3C trace-context and baggage propagators. It returns a
// nil provider when export is disabled.
func SetupTracing(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, ShutdownFunc, error) {
	if !cfg.Enabled() {
		return nil, noopShutdown, nil
	}
	res, err := newResource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	urlPath := cfg.TracesPath
	if urlPath == "" {
		urlPath = DefaultTracesPath
	}
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithURLPath(urlPath),
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter,
			sdktrace.WithExportTimeout(exportTimeout),
			sdktrace.WithMaxQueueSize(maxQueueSize),
		)),
	)
	otel.SetTracerProvider(provider)
	return provider, provider.Shutdown, nil
}

// SetupLogging installs a batching OTLP LoggerProvider as the global log
// provider, which the otelzap bridge reads.
func SetupLogging(ctx context.Context, cfg Config) (*sdklog.LoggerProvider, ShutdownFunc, error) {
	if !cfg.Enabled() {
		return nil, noopShutdown, nil
	}
	res, err := newResource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}
	urlPath := cfg.LogsPath
	if urlPath == "" {
		urlPath = DefaultLogsPath
	}
	opts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(cfg.Endpoint),
		otlploghttp.WithURLPath(urlPath),
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.Headers))
	}
	if cfg.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("otlp log exporter: %w", err)
	}
	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter,
			sdklog.WithExportTimeout(exportTimeout),
			sdklog.WithMaxQueueSize(maxQueueSize),
		)),
	)
	global.SetLoggerProvider(provider)
	return provider, provider.Shutdown, nil
}

// Setup installs both pipelines and returns one shutdown joining their errors.
func Setup(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, ShutdownFunc, error) {
	tp, traceShutdown, err := SetupTracing(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	_, logShutdown, err := SetupLogging(ctx, cfg)
	if err != nil {
		_ = traceShutdown(ctx)
		return nil, nil, err
	}
	return tp, func(ctx context.Context) error {
		return errors.Join(traceShutdown(ctx), logShutdown(ctx))
	}, nil
}
