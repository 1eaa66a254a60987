package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAdapter wraps *zap.Logger to implement the Logger interface. Messages are
// printf formatted like the other adapters.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter creates a Logger from *zap.Logger. A nil logger yields a no-op
// zap logger.
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAdapter{logger: logger}
}

// NewZapLogger builds a production zap logger at the given level.
func NewZapLogger(level LogLevel, format string) (*ZapAdapter, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	if format == "text" {
		cfg.Encoding = "console"
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return NewZapAdapter(logger), nil
}

func zapLevel(l LogLevel) zapcore.Level {
	switch l {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func format(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// Debug logs a debug message.
func (z *ZapAdapter) Debug(msg string, args ...any) { z.logger.Debug(format(msg, args)) }

// Info logs an informational message.
func (z *ZapAdapter) Info(msg string, args ...any) { z.logger.Info(format(msg, args)) }

// Warn logs a warning message.
func (z *ZapAdapter) Warn(msg string, args ...any) { z.logger.Warn(format(msg, args)) }

// Error logs an error message.
func (z *ZapAdapter) Error(msg string, args ...any) { z.logger.Error(format(msg, args)) }

// With returns a child adapter carrying the given string fields.
func (z *ZapAdapter) With(kv ...string) *ZapAdapter {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, zap.String(kv[i], kv[i+1]))
	}
	return &ZapAdapter{logger: z.logger.With(fields...)}
}

// Sync flushes buffered entries.
func (z *ZapAdapter) Sync() error { return z.logger.Sync() }
