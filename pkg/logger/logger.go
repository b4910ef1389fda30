// Package logger provides component-scoped structured logging for InkHarmony.
// Every subsystem logs through the C/CF helpers so that log lines always carry
// the component that produced them.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu      sync.RWMutex
	level   = new(slog.LevelVar)
	current = newLogger(os.Stderr)
)

type writerLogger = slog.Logger

func newLogger(w *os.File) *writerLogger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetLevel adjusts the global log level. Accepts debug, info, warn, error;
// unknown values fall back to info.
func SetLevel(name string) {
	switch strings.ToLower(name) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// SetOutput redirects log output (tests, file logging).
func SetOutput(f *os.File) {
	mu.Lock()
	defer mu.Unlock()
	current = newLogger(f)
}

func log(fn func(string, ...any), component, msg string, fields map[string]interface{}) {
	args := make([]any, 0, 2+2*len(fields))
	args = append(args, "component", component)
	for k, v := range fields {
		args = append(args, k, v)
	}
	fn(msg, args...)
}

func get() *writerLogger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { log(get().Debug, component, msg, nil) }

// DebugCF logs a debug message with fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	log(get().Debug, component, msg, fields)
}

// InfoC logs an info message for a component.
func InfoC(component, msg string) { log(get().Info, component, msg, nil) }

// InfoCF logs an info message with fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	log(get().Info, component, msg, fields)
}

// WarnC logs a warning for a component.
func WarnC(component, msg string) { log(get().Warn, component, msg, nil) }

// WarnCF logs a warning with fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	log(get().Warn, component, msg, fields)
}

// ErrorC logs an error for a component.
func ErrorC(component, msg string) { log(get().Error, component, msg, nil) }

// ErrorCF logs an error with fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	log(get().Error, component, msg, fields)
}
