package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

type contextKey string

const loggerKey contextKey = "logger"

// GenerateTraceID generates a new trace ID. If the entropy source fails the
// ID falls back to the current time so it is still non-zero and unique
// enough to correlate log lines.
func GenerateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "t-" + strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// SnapshotContext creates a logger context for chart capture operations
func SnapshotContext(layoutID, symbol string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"layout_id": layoutID,
		"symbol":    symbol,
	}).WithComponent("snapshot")
}

// ProviderContext creates a logger context for LLM provider calls
func ProviderContext(provider, model string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"provider": provider,
		"model":    model,
	}).WithComponent("llm")
}

// ScheduleContext creates a logger context for automation runs
func ScheduleContext(scheduleID, layoutID string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"schedule_id": scheduleID,
		"layout_id":   layoutID,
	}).WithComponent("scheduler")
}
