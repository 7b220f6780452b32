// Command freshcore serves the perishable inventory API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"freshcore/internal/adapters/httpapi"
	"freshcore/internal/config"
	"freshcore/internal/core"
	"freshcore/internal/infra/messaging/kafka"
	"freshcore/internal/platform/logging"
	"freshcore/internal/platform/observability"
	"freshcore/pkg/domain"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("freshcore: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	application, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.shutdown()
	return application.serve(ctx)
}

type app struct {
	cfg      config.Config
	logger   *zap.Logger
	service  *core.Service
	handler  http.Handler
	closers  []io.Closer
	shutdown func()
}

// newApp wires every collaborator named by cfg.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	otelShutdown, err := setupTelemetry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		ServiceName: config.ServiceName,
		OTelBridge:  cfg.OTel.Enabled(),
	})
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.shutdown = func() {
		for _, c := range a.closers {
			if err := c.Close(); err != nil {
				logger.Warn("close collaborator", zap.Error(err))
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown telemetry", zap.Error(err))
		}
		_ = logger.Sync()
	}

	store, err := core.OpenCollectionStore(ctx, cfg.Storage)
	if err != nil {
		a.shutdown()
		return nil, fmt.Errorf("open collection store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		a.shutdown()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	opts := []core.ServiceOption{
		core.WithLogger(logging.NewAdapter(logger)),
		core.WithMetricsRecorder(core.TeeMetricsRecorder(metrics, core.NewExpvarMetricsRecorder(""))),
		core.WithTracer(core.NewOTelTracer(otel.GetTracerProvider())),
	}
	if cfg.PublishingEnabled() {
		publisher, err := kafka.NewPublisher(cfg.Kafka)
		if err != nil {
			a.shutdown()
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		a.closers = append(a.closers, publisher)
		opts = append(opts, core.WithEventPublisher(publisher))
	}
	a.service = core.NewService(store, opts...)

	if cfg.SeedProductsPath != "" {
		products, err := loadSeedProducts(cfg.SeedProductsPath)
		if err == nil {
			err = a.service.ImportProducts(ctx, products)
		}
		if err != nil {
			a.shutdown()
			return nil, fmt.Errorf("seed products from %s: %w", cfg.SeedProductsPath, err)
		}
		logger.Info("product catalog seeded", zap.Int("products", len(products)))
	}

	a.handler = httpapi.NewRouter(a.service,
		httpapi.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})),
		httpapi.WithDebugVars(expvar.Handler()),
	)
	return a, nil
}

func setupTelemetry(ctx context.Context, cfg config.Config) (observability.ShutdownFunc, error) {
	_, shutdown, err := observability.Setup(ctx, cfg.OTel)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	return shutdown, nil
}

// serve blocks until ctx is cancelled and then drains in-flight requests.
func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: a.handler}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening",
			zap.String("addr", a.cfg.HTTPAddr),
			zap.String("storage", string(a.cfg.Storage.Driver)),
			zap.Bool("publishing", a.cfg.PublishingEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// loadSeedProducts reads a JSON array of catalog products.
func loadSeedProducts(path string) ([]domain.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var products []domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}
