// Package logger provides the leveled logger used by every pipeline stage.
// It wraps the standard `log` package and filters messages by level. A *Logger value is
// handed to each stage explicitly; the package-level functions write through a shared
// default instance for infrastructure code that has no stage context.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel is a type representing the logging level.
type LogLevel int

const (
	// LevelDebug is the log level used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is the log level used for general informational messages.
	LevelInfo
	// LevelWarn is the log level used for potential issues or warning messages.
	LevelWarn
	// LevelError is the log level used for error messages.
	LevelError
	// LevelFatal is the log level used for fatal error messages that cause application termination.
	LevelFatal
)

// String returns the label printed in front of each message.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name ("DEBUG", "INFO", "WARN", "ERROR", "FATAL", case-insensitive)
// into a LogLevel. The boolean is false when the name is not recognized, in which case LevelInfo is returned.
func ParseLevel(level string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "TRACE":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// Logger is a leveled log sink. The zero value is not usable; construct it with New.
type Logger struct {
	mu     sync.RWMutex
	level  LogLevel
	out    *log.Logger
	prefix string
}

// New creates a Logger writing to w at the given level.
// Messages carry the standard date/time flags of the `log` package.
func New(w io.Writer, level LogLevel) *Logger {
	return &Logger{
		level: level,
		out:   log.New(w, "", log.LstdFlags),
	}
}

// With returns a child Logger sharing the same writer and level whose messages are
// prefixed with "[prefix] ". It is used to tag messages with a stage name.
func (l *Logger) With(prefix string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p := prefix
	if l.prefix != "" {
		p = strings.TrimSuffix(l.prefix, " ") + "/" + prefix
	}
	return &Logger{level: l.level, out: l.out, prefix: p + " "}
}

// SetLevel changes the minimum level written by this Logger.
// Unknown names fall back to INFO and a notice is printed to standard output.
func (l *Logger) SetLevel(level string) {
	lvl, ok := ParseLevel(level)
	if !ok {
		fmt.Printf("Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
	}
	l.mu.Lock()
	l.level = lvl
	l.mu.Unlock()
}

// Level returns the current minimum level.
func (l *Logger) Level() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// SetOutput redirects the Logger to w.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.out.SetOutput(w)
	l.mu.Unlock()
}

func (l *Logger) logf(level LogLevel, format string, v ...interface{}) {
	l.mu.RLock()
	enabled := l.level <= level
	prefix := l.prefix
	l.mu.RUnlock()
	if !enabled {
		return
	}
	l.out.Printf("["+level.String()+"] "+prefix+format, v...)
}

// Debugf formats and outputs a DEBUG level log message.
func (l *Logger) Debugf(format string, v ...interface{}) { l.logf(LevelDebug, format, v...) }

// Infof formats and outputs an INFO level log message.
func (l *Logger) Infof(format string, v ...interface{}) { l.logf(LevelInfo, format, v...) }

// Warnf formats and outputs a WARN level log message.
func (l *Logger) Warnf(format string, v ...interface{}) { l.logf(LevelWarn, format, v...) }

// Errorf formats and outputs an ERROR level log message.
func (l *Logger) Errorf(format string, v ...interface{}) { l.logf(LevelError, format, v...) }

// Fatalf outputs a FATAL level log message and terminates the process with os.Exit(1).
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.mu.RLock()
	prefix := l.prefix
	l.mu.RUnlock()
	l.out.Fatalf("[FATAL] "+prefix+format, v...)
}

// std is the default Logger used by the package-level functions.
var std = New(os.Stderr, LevelInfo)

// Default returns the shared default Logger.
func Default() *Logger {
	return std
}

// OpenFile configures the default Logger to write to standard error and, if path is not
// empty, to append to the file at path as well. The returned closer releases the file.
func OpenFile(path string) (io.Closer, error) {
	if path == "" {
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file '%s': %w", path, err)
	}
	std.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

// SetLogLevel sets the level of the default Logger.
// Valid string values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" (case-insensitive).
func SetLogLevel(level string) {
	std.SetLevel(level)
}

// Debugf writes a DEBUG message through the default Logger.
func Debugf(format string, v ...interface{}) { std.logf(LevelDebug, format, v...) }

// Infof writes an INFO message through the default Logger.
func Infof(format string, v ...interface{}) { std.logf(LevelInfo, format, v...) }

// Warnf writes a WARN message through the default Logger.
func Warnf(format string, v ...interface{}) { std.logf(LevelWarn, format, v...) }

// Errorf writes an ERROR message through the default Logger.
func Errorf(format string, v ...interface{}) { std.logf(LevelError, format, v...) }

// Fatalf writes a FATAL message through the default Logger and exits the process.
func Fatalf(format string, v ...interface{}) { std.Fatalf(format, v...) }
