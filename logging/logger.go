package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is the configured verbosity, independent of the backend.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the upper-case level name.
func (l LogLevel) String() string {
	return strings.ToUpper(slogLevel(l).String())
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ParseLevel maps a configuration string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	}
	return LogLevelInfo
}

// Logger is the logging interface used across prospectmesh. Messages are
// printf style.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoOpLogger discards all log messages.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	RunID       string
	ProspectID  string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a JSON info level configuration on stdout.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, AddSource: true}
}

// PipelineLogger is a slog backed Logger scoped to a component, run and
// prospect. With* methods return derived loggers and leave the receiver
// untouched.
type PipelineLogger struct {
	logger *slog.Logger
}

// NewLogger builds a PipelineLogger. A nil cfg uses DefaultLoggerConfig.
func NewLogger(cfg *LoggerConfig) *PipelineLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler = slog.NewJSONHandler(out, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	}

	var attrs []any
	for _, kv := range [][2]string{{"component", cfg.Component}, {"run_id", cfg.RunID}, {"prospect_id", cfg.ProspectID}} {
		if kv[1] != "" {
			attrs = append(attrs, kv[0], kv[1])
		}
	}
	for k, v := range cfg.CustomAttrs {
		attrs = append(attrs, k, v)
	}

	return &PipelineLogger{logger: slog.New(handler).With(attrs...)}
}

// NewSlogLogger is NewLogger with the defaults plus level, format and source.
func NewSlogLogger(level LogLevel, format string, addSource bool) *PipelineLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

// WithAttr returns a logger that attaches key=value to every entry.
func (l *PipelineLogger) WithAttr(key string, value any) *PipelineLogger {
	return &PipelineLogger{logger: l.logger.With(key, value)}
}

// WithComponent scopes entries to a component (engine, rpc, ...).
func (l *PipelineLogger) WithComponent(c string) *PipelineLogger { return l.WithAttr("component", c) }

// WithRun scopes entries to a run.
func (l *PipelineLogger) WithRun(runID string) *PipelineLogger { return l.WithAttr("run_id", runID) }

// WithProspect scopes entries to a prospect.
func (l *PipelineLogger) WithProspect(id string) *PipelineLogger {
	return l.WithAttr("prospect_id", id)
}

func (l *PipelineLogger) logf(level slog.Level, msg string, args []any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.logger.Log(ctx, level, msg)
}

func (l *PipelineLogger) Debug(msg string, args ...any) { l.logf(slog.LevelDebug, msg, args) }
func (l *PipelineLogger) Info(msg string, args ...any)  { l.logf(slog.LevelInfo, msg, args) }
func (l *PipelineLogger) Warn(msg string, args ...any)  { l.logf(slog.LevelWarn, msg, args) }
func (l *PipelineLogger) Error(msg string, args ...any) { l.logf(slog.LevelError, msg, args) }

// outcome logs a timed call at ok level, or at failed level with the error.
func (l *PipelineLogger) outcome(ok, failed slog.Level, okMsg, failedMsg string, dur time.Duration, err error, attrs ...slog.Attr) {
	level, msg := ok, okMsg
	attrs = append(attrs, slog.Duration("duration", dur), slog.Bool("success", err == nil))
	if err != nil {
		level, msg = failed, failedMsg
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogStage records one stage attempt.
func (l *PipelineLogger) LogStage(stage string, attempt int, dur time.Duration, err error) {
	l.outcome(slog.LevelInfo, slog.LevelWarn, "stage completed", "stage failed", dur, err,
		slog.String("stage", stage), slog.Int("attempt", attempt))
}

// LogRPCCall records a collaborator call.
func (l *PipelineLogger) LogRPCCall(service, method string, dur time.Duration, err error) {
	l.outcome(slog.LevelDebug, slog.LevelWarn, "rpc call completed", "rpc call failed", dur, err,
		slog.String("service", service), slog.String("method", method))
}

// LogLLMCall records a generation with the number of streamed fragments.
func (l *PipelineLogger) LogLLMCall(model string, tokens int, dur time.Duration, success bool, err error) {
	if !success && err == nil {
		err = fmt.Errorf("generation unsuccessful")
	}
	l.outcome(slog.LevelInfo, slog.LevelError, "llm call completed", "llm call failed", dur, err,
		slog.String("model", model), slog.Int("token_count", tokens))
}
