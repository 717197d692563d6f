package logger

import (
	"os"
	"strings"
)

// LogLevel defines the level of logging
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

// LevelFromEnv will look at the environment var `STATUSLINE_LOG_LEVEL` and convert it into the appropriate LogLevel
func LevelFromEnv() LogLevel {
	switch strings.ToLower(os.Getenv("STATUSLINE_LOG_LEVEL")) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "none":
		return LevelNone
	default:
		// The status line runs on every prompt; stay quiet unless asked.
		return LevelWarn
	}
}

// Logger is an interface for logging
type Logger interface {
	// With will return a new logger using metadata as the base context
	With(metadata map[string]interface{}) Logger
	// WithPrefix will return a new logger with a prefix prepended to the message
	WithPrefix(prefix string) Logger
	// Trace logs a message at trace level
	Trace(msg string, args ...interface{})
	// Debug logs a message at debug level
	Debug(msg string, args ...interface{})
	// Info logs a message at info level
	Info(msg string, args ...interface{})
	// Warn logs a message at warn level
	Warn(msg string, args ...interface{})
	// Error logs a message at error level
	Error(msg string, args ...interface{})
}
