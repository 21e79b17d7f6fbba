package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

// Logger provides leveled logging with verbose mode support. Debug output is
// shown only in verbose mode; Info, Warn and Error are always shown.
type Logger struct {
	mu      sync.RWMutex
	verbose bool
	out     io.Writer
	format  log.Formatter
	log     *log.Logger
}

var (
	loggerInstance *Logger
	once           sync.Once
)

// GetLogger returns the singleton logger instance, writing to stderr.
func GetLogger() *Logger {
	once.Do(func() {
		loggerInstance = newLogger(os.Stderr, log.TextFormatter)
	})
	return loggerInstance
}

func newLogger(w io.Writer, format log.Formatter) *Logger {
	l := &Logger{out: w, format: format}
	l.rebuild()
	return l
}

// rebuild recreates the underlying logger. Callers hold mu or own l.
func (l *Logger) rebuild() {
	level := log.InfoLevel
	if l.verbose {
		level = log.DebugLevel
	}
	l.log = log.NewWithOptions(l.out, log.Options{
		Level:           level,
		Formatter:       l.format,
		ReportTimestamp: l.verbose,
		TimeFormat:      "15:04:05",
	})
}

// SetVerboseMode sets the verbose mode globally.
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
}

// SetVerbose sets the verbose mode for this logger instance.
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
	l.rebuild()
}

// IsVerbose returns whether verbose mode is enabled.
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// SetOutput redirects log output.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
	l.rebuild()
}

// SetFormat selects the output format: "text", "json" or "logfmt".
func (l *Logger) SetFormat(format string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = ParseLogFormatter(format)
	l.rebuild()
}

// ParseLogFormatter maps a format name to a formatter. Unknown names use text.
func ParseLogFormatter(format string) log.Formatter {
	switch format {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

func (l *Logger) current() *log.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.log
}

// formatMessage formats a message with optional printf-style arguments.
func formatMessage(msgOrFormat string, args ...interface{}) string {
	if len(args) > 0 {
		return fmt.Sprintf(msgOrFormat, args...)
	}
	return msgOrFormat
}

// Debug logs a debug message (only shown when verbose=true).
func (l *Logger) Debug(msgOrFormat string, args ...interface{}) {
	l.current().Debug(formatMessage(msgOrFormat, args...))
}

// Info logs an info message.
func (l *Logger) Info(msgOrFormat string, args ...interface{}) {
	l.current().Info(formatMessage(msgOrFormat, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(msgOrFormat string, args ...interface{}) {
	l.current().Warn(formatMessage(msgOrFormat, args...))
}

// Error logs an error message.
func (l *Logger) Error(msgOrFormat string, args ...interface{}) {
	l.current().Error(formatMessage(msgOrFormat, args...))
}

// With returns a charmbracelet logger carrying the given key/value pairs.
func (l *Logger) With(keyvals ...interface{}) *log.Logger {
	return l.current().With(keyvals...)
}

// Debugf logs a debug message using the global logger.
func Debugf(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// Infof logs an info message using the global logger.
func Infof(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// Warnf logs a warning message using the global logger.
func Warnf(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// Errorf logs an error message using the global logger.
func Errorf(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// BackgroundLogger writes the log of a long-running watch process to a file.
type BackgroundLogger struct {
	logger   *log.Logger
	logFile  *os.File
	filePath string
}

// NewBackgroundLogger opens (appending) the log file at path.
func NewBackgroundLogger(path string) (*BackgroundLogger, error) {
	bl := &BackgroundLogger{filePath: path}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		bl.logger = log.New(io.Discard)
		return bl, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		bl.logger = log.New(io.Discard)
		return bl, err
	}

	bl.logFile = file
	bl.logger = log.NewWithOptions(file, log.Options{
		Formatter:       log.LogfmtFormatter,
		ReportTimestamp: true,
		Level:           log.DebugLevel,
	})
	return bl, nil
}

// Printf logs a formatted message.
func (bl *BackgroundLogger) Printf(format string, args ...interface{}) {
	if bl.logger != nil {
		bl.logger.Info(fmt.Sprintf(format, args...))
	}
}

// Close closes the log file. Later writes are discarded.
func (bl *BackgroundLogger) Close() {
	if bl.logFile != nil {
		_ = bl.logFile.Close()
		bl.logFile = nil
	}
	bl.logger = log.New(io.Discard)
}

// GetLogPath returns the log file path.
func (bl *BackgroundLogger) GetLogPath() string {
	return bl.filePath
}

// IsEnabled reports whether a log file is open.
func (bl *BackgroundLogger) IsEnabled() bool {
	return bl.logFile != nil
}
