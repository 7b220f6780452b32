// Package config loads freshcore process settings from FRESHCORE_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"freshcore/internal/blob"
	"freshcore/internal/core"
	"freshcore/internal/infra/messaging/kafka"
	"freshcore/internal/platform/observability"
)

const (
	ServiceName    = "freshcore"
	ServiceVersion = "0.1.0"

	defaultHTTPAddr        = ":8080"
	defaultShutdownTimeout = 10 * time.Second
)

// Config is the full process configuration.
type Config struct {
	HTTPAddr         string
	LogLevel         string
	Storage          core.StorageConfig
	Kafka            kafka.Config
	OTel             observability.Config
	SeedProductsPath string
	ShutdownTimeout  time.Duration
}

// PublishingEnabled reports whether a Kafka broker is configured.
func (c Config) PublishingEnabled() bool { return len(c.Kafka.Brokers) > 0 }

// Load reads the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads configuration through getenv.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Config{
		HTTPAddr:         valueOr(getenv("FRESHCORE_HTTP_ADDR"), defaultHTTPAddr),
		LogLevel:         getenv("FRESHCORE_LOG_LEVEL"),
		SeedProductsPath: getenv("FRESHCORE_SEED_PRODUCTS"),
		ShutdownTimeout:  defaultShutdownTimeout,
		Storage: core.StorageConfig{
			Driver:      core.StorageDriver(strings.ToLower(getenv("FRESHCORE_STORAGE_DRIVER"))),
			SQLitePath:  getenv("FRESHCORE_SQLITE_PATH"),
			PostgresDSN: getenv("FRESHCORE_POSTGRES_DSN"),
			BlobPrefix:  getenv("FRESHCORE_BLOB_PREFIX"),
			Blob: blob.Config{
				Driver: blob.Driver(strings.ToLower(getenv("FRESHCORE_BLOB_DRIVER"))),
				FSRoot: getenv("FRESHCORE_BLOB_FS_ROOT"),
				S3: blob.S3Config{
					Bucket:          getenv("FRESHCORE_BLOB_S3_BUCKET"),
					Region:          getenv("FRESHCORE_BLOB_S3_REGION"),
					Endpoint:        getenv("FRESHCORE_BLOB_S3_ENDPOINT"),
					AccessKeyID:     getenv("FRESHCORE_BLOB_S3_ACCESS_KEY_ID"),
					SecretAccessKey: getenv("FRESHCORE_BLOB_S3_SECRET_ACCESS_KEY"),
					PathStyle:       strings.EqualFold(getenv("FRESHCORE_BLOB_S3_PATH_STYLE"), "true"),
				},
			},
		},
		Kafka: kafka.Config{
			Brokers: splitList(getenv("FRESHCORE_KAFKA_BROKERS")),
			Topic:   valueOr(getenv("FRESHCORE_KAFKA_TOPIC"), kafka.DefaultTopic),
		},
		OTel: observability.Config{
			Endpoint:       getenv("FRESHCORE_OTEL_ENDPOINT"),
			Headers:        parseHeaders(getenv("FRESHCORE_OTEL_HEADERS")),
			ServiceName:    ServiceName,
			ServiceVersion: ServiceVersion,
		},
	}

	switch cfg.Storage.Driver {
	case "", core.StorageMemory, core.StorageSQLite, core.StoragePostgres, core.StorageBlob:
	default:
		return Config{}, fmt.Errorf("FRESHCORE_STORAGE_DRIVER: unknown driver %q", cfg.Storage.Driver)
	}
	if !cfg.Storage.Blob.Driver.Valid() {
		return Config{}, fmt.Errorf("FRESHCORE_BLOB_DRIVER: unknown driver %q", cfg.Storage.Blob.Driver)
	}
	if cfg.Storage.Driver == core.StoragePostgres && cfg.Storage.PostgresDSN == "" {
		return Config{}, fmt.Errorf("FRESHCORE_POSTGRES_DSN is required for the postgres driver")
	}
	if raw := getenv("FRESHCORE_OTEL_INSECURE"); raw != "" {
		insecure, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("FRESHCORE_OTEL_INSECURE: %w", err)
		}
		cfg.OTel.Insecure = insecure
	}
	if raw := getenv("FRESHCORE_SHUTDOWN_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("FRESHCORE_SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	return cfg, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseHeaders reads "k1=v1,k2=v2". Malformed pairs are skipped.
func parseHeaders(raw string) map[string]string {
	pairs := splitList(raw)
	if len(pairs) == 0 {
		return nil
	}
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers
}
