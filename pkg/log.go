package pkg

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Gadget component identifiers.
const (
	ComponentRegistry  Component = "registry"
	ComponentFactory   Component = "factory"
	ComponentAssembler Component = "assembler"
	ComponentComposite Component = "composite"
	ComponentDevice    Component = "device"
	ComponentFunction  Component = "function"
	ComponentHAL       Component = "hal"
	ComponentConfig    Component = "config"
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // Text format (default)
	LogFormatJSON                  // JSON format
)

var (
	// DefaultLogger is the logger used by every gadget component.
	DefaultLogger *slog.Logger

	logLevel = new(slog.LevelVar)
	logMutex sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// SetLogLevel sets the minimum log level.
func SetLogLevel(level slog.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel.Set(level)
}

// GetLogLevel returns the current minimum log level.
func GetLogLevel() slog.Level {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logLevel.Level()
}

// SetLogger replaces the default logger.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
}

// ParseLogLevel converts a level name (debug, info, warn, error) to a
// slog.Level. Matching is case-insensitive.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: log level %q", ErrInvalidConfig, name)
	}
}

// ParseLogFormat converts a format name (text, json) to a LogFormat.
func ParseLogFormat(name string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text":
		return LogFormatText, nil
	case "json":
		return LogFormatJSON, nil
	default:
		return LogFormatText, fmt.Errorf("%w: log format %q", ErrInvalidConfig, name)
	}
}

// ConfigureLogging installs a logger writing to w in the given format and
// sets the minimum level. A nil writer selects os.Stderr.
func ConfigureLogging(w io.Writer, format LogFormat, level slog.Level) {
	if w == nil {
		w = os.Stderr
	}
	SetLogLevel(level)
	opts := &slog.HandlerOptions{Level: logLevel}

	var logger *slog.Logger
	switch format {
	case LogFormatJSON:
		logger = slog.New(slog.NewJSONHandler(w, opts))
	default:
		logger = slog.New(slog.NewTextHandler(w, opts))
	}
	SetLogger(logger)
}

// NewLogger creates a text logger writing to w.
func NewLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: logLevel}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func currentLogger() *slog.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return DefaultLogger
}

func withComponent(component Component, args []any) []any {
	return append([]any{"component", string(component)}, args...)
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	currentLogger().Debug(msg, withComponent(component, args)...)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	currentLogger().Info(msg, withComponent(component, args)...)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	currentLogger().Warn(msg, withComponent(component, args)...)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	currentLogger().Error(msg, withComponent(component, args)...)
}
