package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level       string `json:"level"`
	Output      string `json:"output"` // "stdout", "stderr", or file path
	Component   string `json:"component"`
	IncludeFile bool   `json:"include_file"` // annotate entries with caller file and line
	JSONFormat  bool   `json:"json_format"`
}

// Logger is a structured logger carrying component, trace and field context
type Logger struct {
	zl zerolog.Logger
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// ParseLevel maps a configuration string onto a zerolog level, defaulting to info
func ParseLevel(s string) zerolog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a logger with the given configuration
func New(cfg *Config) *Logger {
	var output io.Writer = os.Stdout
	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		output = os.Stderr
	default:
		if file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			output = file
		}
	}
	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(output).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	if cfg.IncludeFile {
		ctx = ctx.Caller()
	}
	l := ctx.Logger()
	return &Logger{zl: l}
}

// Default returns the process-wide logger, creating a JSON stdout logger on first use
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(&Config{Level: "info", JSONFormat: true})
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// WithComponent returns a new logger tagged with the component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

// WithTraceID returns a new logger tagged with the trace ID
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{zl: l.zl.With().Str("trace_id", traceID).Logger()}
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger()}
}

// WithError returns a new logger with the error attached
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.zl.Debug().Msg(formatMessage(msg, args))
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.zl.Info().Msg(formatMessage(msg, args))
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.zl.Warn().Msg(formatMessage(msg, args))
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.zl.Error().Msg(formatMessage(msg, args))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.zl.Fatal().Msg(formatMessage(msg, args))
}

// WithComponent tags the default logger with a component name
func WithComponent(component string) *Logger {
	return Default().WithComponent(component)
}

func formatMessage(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
