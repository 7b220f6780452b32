// Package logging builds the zap logger used by the freshcore binary and
// adapts it to core.Logger.
package logging

import (
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"freshcore/internal/core"
)

// ScopeName names the instrumentation scope of bridged log records.
const ScopeName = "freshcore"

// Config selects the level and sinks of the process logger.
type Config struct {
	Level       string
	ServiceName string
	// OTelBridge tees records into the global OpenTelemetry LoggerProvider.
	OTelBridge bool
	// Output defaults to stdout.
	Output io.Writer
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(raw string) (zapcore.Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(strings.ToLower(raw))
}

// New builds a JSON console logger, optionally teed with the otelzap bridge.
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(zapcore.AddSync(out)), level),
	}
	if cfg.OTelBridge {
		cores = append(cores, otelzap.NewCore(ScopeName, otelzap.WithLoggerProvider(global.GetLoggerProvider())))
	}
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.ServiceName != "" {
		opts = append(opts, zap.Fields(zap.String("service.name", cfg.ServiceName)))
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

// Adapter satisfies core.Logger on top of a sugared zap logger.
type Adapter struct {
	sugar *zap.SugaredLogger
}

var _ core.Logger = (*Adapter)(nil)

// NewAdapter wraps l. A nil logger yields a no-op adapter.
func NewAdapter(l *zap.Logger) *Adapter {
	if l == nil {
		l = zap.NewNop()
	}
	// skip the adapter frame so callers are reported correctly
	return &Adapter{sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (a *Adapter) Debug(msg string, args ...any) { a.sugar.Debugw(msg, args...) }
func (a *Adapter) Info(msg string, args ...any)  { a.sugar.Infow(msg, args...) }
func (a *Adapter) Warn(msg string, args ...any)  { a.sugar.Warnw(msg, args...) }
func (a *Adapter) Error(msg string, args ...any) { a.sugar.Errorw(msg, args...) }
