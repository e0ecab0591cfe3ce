package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanko-field/returns/internal/platform/requestctx"
)

// NewLogger builds the JSON logger used by both binaries. Field names follow Cloud Logging's
// structured payload conventions. Unknown levels fall back to info.
func NewLogger(levelName, service string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(levelName))
	if err != nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if service = strings.TrimSpace(service); service != "" {
		cfg.InitialFields = map[string]any{"service": service}
	}
	return cfg.Build()
}

// WithLogger stores logger on ctx for code that runs outside an HTTP request.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// EventLogger adapts zap to the event callback taken by the services. It logs on the request
// logger when one is present and on base otherwise. Events ending in "failed" log at warn.
func EventLogger(base *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = base
		}
		zf := make([]zap.Field, 0, len(fields)+1)
		zf = append(zf, zap.String("event", event))
		for key, value := range fields {
			if err, ok := value.(error); ok {
				zf = append(zf, zap.NamedError(key, err))
				continue
			}
			zf = append(zf, zap.Any(key, value))
		}
		if strings.HasSuffix(event, "failed") {
			logger.Warn(event, zf...)
			return
		}
		logger.Info(event, zf...)
	}
}

// KeyValueAdapter exposes zap through the Debug/Info/Warn/Error(msg, keysAndValues...) shape
// expected by gocron and the idempotency middleware.
type KeyValueAdapter struct {
	s *zap.SugaredLogger
}

// NewKeyValueAdapter wraps logger. A nil logger discards output.
func NewKeyValueAdapter(logger *zap.Logger) KeyValueAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return KeyValueAdapter{s: logger.Sugar()}
}

func (a KeyValueAdapter) Debug(msg string, kv ...any) { a.s.Debugw(msg, kv...) }
func (a KeyValueAdapter) Info(msg string, kv ...any)  { a.s.Infow(msg, kv...) }
func (a KeyValueAdapter) Warn(msg string, kv ...any)  { a.s.Warnw(msg, kv...) }
func (a KeyValueAdapter) Error(msg string, kv ...any) { a.s.Errorw(msg, kv...) }
