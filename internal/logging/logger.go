package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kyleking/schema-replay/internal/catalog"
	"github.com/kyleking/schema-replay/internal/config"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

const (
	logDirPerm  = 0o755
	logFilePerm = 0o644
	callerSkip  = 3
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// sink is shared by a logger and every logger derived from it
type sink struct {
	mu   sync.Mutex
	out  io.Writer
	file *os.File
}

// Logger provides structured logging capabilities. Derived loggers from
// WithField share the parent's output.
type Logger struct {
	level      LogLevel
	format     string
	sink       *sink
	fields     map[string]any
	showCaller bool
}

var (
	globalMu     sync.RWMutex
	globalLogger = newFallback()
)

// InitializeLogger replaces the global logger, closing the previous one
func InitializeLogger(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}

	globalMu.Lock()
	previous := globalLogger
	globalLogger = logger
	globalMu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}

	return nil
}

// NewLogger creates a new logger with the given configuration
func NewLogger(cfg config.LoggingConfig) (*Logger, error) {
	s := &sink{}

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		s.out = os.Stdout
	case "", "stderr":
		s.out = os.Stderr
	case "file":
		if cfg.File == "" {
			return nil, errors.New("log file path is required when output is 'file'")
		}

		if err := os.MkdirAll(filepath.Dir(cfg.File), logDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		s.file = file
		s.out = file
	default:
		return nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	level := parseLogLevel(cfg.Level)

	return &Logger{
		level:      level,
		format:     strings.ToLower(cfg.Format),
		sink:       s,
		fields:     map[string]any{},
		showCaller: cfg.AddSource || level == DebugLevel,
	}, nil
}

// NewWriterLogger logs to w; used by tests and for embedding
func NewWriterLogger(w io.Writer, level LogLevel, format string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		sink:   &sink{out: w},
		fields: map[string]any{},
	}
}

func newFallback() *Logger {
	return NewWriterLogger(os.Stderr, WarnLevel, "text")
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Level returns the minimum level that is written
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) derive(extra map[string]any) *Logger {
	fields := maps.Clone(l.fields)
	if fields == nil {
		fields = map[string]any{}
	}

	maps.Copy(fields, extra)

	return &Logger{
		level:      l.level,
		format:     l.format,
		sink:       l.sink,
		fields:     fields,
		showCaller: l.showCaller,
	}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value any) *Logger {
	return l.derive(map[string]any{key: value})
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return l.derive(fields)
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	return l.WithField("error", err.Error())
}

// WithArtifact tags entries with the migration file being processed
func (l *Logger) WithArtifact(a catalog.Artifact) *Logger {
	return l.derive(map[string]any{
		"migration": a.Name,
		"timestamp": a.Timestamp,
		"path":      a.Path,
	})
}

func (l *Logger) log(level LogLevel, message string, err error) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Fields:    l.fields,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	if l.showCaller {
		entry.Caller = getCaller()
	}

	var line string

	if l.format == "json" {
		data, _ := json.Marshal(entry)
		line = string(data)
	} else {
		line = formatText(entry)
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	_, _ = fmt.Fprintln(l.sink.out, line)
}

// formatText renders "[ts] LEVEL (caller) message {k=v ...} error=..." with
// fields in key order
func formatText(entry LogEntry) string {
	parts := []string{fmt.Sprintf("[%s] %s", entry.Timestamp, entry.Level)}

	if entry.Caller != "" {
		parts = append(parts, fmt.Sprintf("(%s)", entry.Caller))
	}

	parts = append(parts, entry.Message)

	if len(entry.Fields) > 0 {
		fieldParts := make([]string, 0, len(entry.Fields))
		for _, k := range slices.Sorted(maps.Keys(entry.Fields)) {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%v", k, entry.Fields[k]))
		}

		parts = append(parts, fmt.Sprintf("{%s}", strings.Join(fieldParts, " ")))
	}

	if entry.Error != "" {
		parts = append(parts, "error="+entry.Error)
	}

	return strings.Join(parts, " ")
}

func getCaller() string {
	_, file, line, ok := runtime.Caller(callerSkip)
	if !ok {
		return "unknown"
	}

	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(DebugLevel, message, nil)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...any) {
	l.log(DebugLevel, fmt.Sprintf(format, args...), nil)
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(InfoLevel, message, nil)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...any) {
	l.log(InfoLevel, fmt.Sprintf(format, args...), nil)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(WarnLevel, message, nil)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...any) {
	l.log(WarnLevel, fmt.Sprintf(format, args...), nil)
}

// Error logs an error message
func (l *Logger) Error(message string) {
	l.log(ErrorLevel, message, nil)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...any) {
	l.log(ErrorLevel, fmt.Sprintf(format, args...), nil)
}

// ErrorWithErr logs an error message with an associated error
func (l *Logger) ErrorWithErr(message string, err error) {
	l.log(ErrorLevel, message, err)
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.file != nil {
		err := l.sink.file.Close()
		l.sink.file = nil

		return err
	}

	return nil
}

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	return globalLogger
}

// SetLogger swaps the global logger and returns the previous one
func SetLogger(l *Logger) *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()

	previous := globalLogger
	globalLogger = l

	return previous
}

// Debug logs a debug message using the global logger
func Debug(message string) { GetLogger().Debug(message) }

// Debugf logs a formatted debug message using the global logger
func Debugf(format string, args ...any) { GetLogger().Debugf(format, args...) }

// Info logs an info message using the global logger
func Info(message string) { GetLogger().Info(message) }

// Infof logs a formatted info message using the global logger
func Infof(format string, args ...any) { GetLogger().Infof(format, args...) }

// Warn logs a warning message using the global logger
func Warn(message string) { GetLogger().Warn(message) }

// Warnf logs a formatted warning message using the global logger
func Warnf(format string, args ...any) { GetLogger().Warnf(format, args...) }

// Error logs an error message using the global logger
func Error(message string) { GetLogger().Error(message) }

// Errorf logs a formatted error message using the global logger
func Errorf(format string, args ...any) { GetLogger().Errorf(format, args...) }

// ErrorWithErr logs an error message with an associated error using the global logger
func ErrorWithErr(message string, err error) { GetLogger().ErrorWithErr(message, err) }

// WithField adds a field to the global logger context
func WithField(key string, value any) *Logger { return GetLogger().WithField(key, value) }

// WithFields adds multiple fields to the global logger context
func WithFields(fields map[string]any) *Logger { return GetLogger().WithFields(fields) }

// WithError adds an error to the global logger context
func WithError(err error) *Logger { return GetLogger().WithError(err) }

// WithArtifact tags global log entries with a migration file
func WithArtifact(a catalog.Artifact) *Logger { return GetLogger().WithArtifact(a) }

// LoggerMiddleware times fn and logs its outcome under operation
func LoggerMiddleware(operation string, fn func() error) error {
	logger := WithField("operation", operation)
	logger.Debug("Starting operation")

	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		logger.WithField("duration", duration.String()).ErrorWithErr("Operation failed", err)
	} else {
		logger.WithField("duration", duration.String()).Debug("Operation completed successfully")
	}

	return err
}
