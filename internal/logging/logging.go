// Package logging provides structured logging for the gridpower daemon.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports both text and JSON
// output formats, configurable log levels, and component-based loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("ingestion")
//	log.Info("session completed", "rows", 42)
//
//	// Log with request-scoped context
//	logging.WithContext(ctx).Warn("row rejected", "reasons", reasons)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	InitWriter(os.Stdout, level, jsonFormat)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a config string ("debug", "info", "warn", "error")
// into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	return root().With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Component loggers are resolved lazily, so a package-level
//
//	var log = logging.Component("store")
//
// still follows a later Init call.
func Component(name string) *slog.Logger {
	return slog.New(&componentHandler{name: name})
}

// WithContext returns a logger that includes context values.
// Ingest sessions carry a session id, HTTP requests a request id.
func WithContext(ctx context.Context) *slog.Logger {
	return enrich(ctx, root())
}

// FromContext is WithContext for an existing (component) logger.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	return enrich(ctx, logger)
}

func enrich(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil {
		return logger
	}
	if sessionID := SessionID(ctx); sessionID != "" {
		logger = logger.With("session_id", sessionID)
	}
	if source, ok := ctx.Value(contextKeySource).(string); ok {
		logger = logger.With("source", source)
	}
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok {
		logger = logger.With("request_id", requestID)
	}
	return logger
}

func root() *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger
}

// componentHandler defers to the current global handler on every call.
type componentHandler struct {
	name  string
	attrs []slog.Attr
	group string
}

func (h *componentHandler) target() slog.Handler {
	var inner slog.Handler = root().Handler().WithAttrs([]slog.Attr{slog.String("component", h.name)})
	if len(h.attrs) > 0 {
		inner = inner.WithAttrs(h.attrs)
	}
	if h.group != "" {
		inner = inner.WithGroup(h.group)
	}
	return inner
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return root().Handler().Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &componentHandler{name: h.name, attrs: merged, group: h.group}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{name: h.name, attrs: h.attrs, group: name}
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeySessionID contextKey = iota
	contextKeySource
	contextKeyRequestID
)

// ContextWithSessionID adds an ingest session ID to the context for logging.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKeySessionID, sessionID)
}

// SessionID returns the ingest session ID stored in ctx, if any.
func SessionID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKeySessionID).(string)
	return id
}

// ContextWithSource tags the context with the transport that produced the
// stream (http, mqtt, kafka).
func ContextWithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, contextKeySource, source)
}

// ContextWithRequestID adds an HTTP request ID to the context for logging.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	root().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	root().Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	root().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	root().Error(msg, args...)
}
