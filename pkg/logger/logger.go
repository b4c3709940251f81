// Package logger provides leveled logging with file rotation for the
// database monitor. Output goes to stdout and a rotated log file.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the severity of a log message.
type Level int

// Severity levels, lowest first.
const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelPrefix = map[Level]string{
	DEBUG: "[DEBUG] ",
	INFO:  "[INFO] ",
	WARN:  "[WARN] ",
	ERROR: "[ERROR] ",
	FATAL: "[FATAL] ",
}

// ParseLevel converts a level name to its Level constant. Unknown names
// default to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Logger writes leveled messages through a single underlying log.Logger.
type Logger struct {
	out   *log.Logger
	mu    sync.RWMutex
	level Level
}

var (
	instance *Logger
	once     sync.Once
)

// Options configures log rotation.
type Options struct {
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultOptions are used when Init is called without explicit rotation config.
var DefaultOptions = Options{MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}

// Init initializes the global logger. Safe to call more than once; only the
// first call takes effect.
func Init(path string, level Level, opts Options) {
	once.Do(func() {
		instance = New(path, level, opts)
	})
}

// New creates a logger writing to stdout and a rotated file at path.
func New(path string, level Level, opts Options) *Logger {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Fatalf("cannot create log directory: %v", err)
	}
	rotated := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   opts.Compress,
	}
	w := io.MultiWriter(os.Stdout, rotated)
	return &Logger{
		out:   log.New(w, "", log.LstdFlags|log.Lshortfile),
		level: level,
	}
}

// SetLevel changes the minimum level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) enabled(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func (l *Logger) logf(level Level, format string, v ...interface{}) {
	if !l.enabled(level) {
		return
	}
	l.out.Output(3, levelPrefix[level]+fmt.Sprintf(format, v...))
	if level == FATAL {
		os.Exit(1)
	}
}

// Debugf logs a formatted debug-level message.
func (l *Logger) Debugf(format string, v ...interface{}) { l.logf(DEBUG, format, v...) }

// Infof logs a formatted info-level message.
func (l *Logger) Infof(format string, v ...interface{}) { l.logf(INFO, format, v...) }

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, v ...interface{}) { l.logf(WARN, format, v...) }

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, v ...interface{}) { l.logf(ERROR, format, v...) }

// Fatalf logs a formatted fatal-level message and exits.
func (l *Logger) Fatalf(format string, v ...interface{}) { l.logf(FATAL, format, v...) }

// Global convenience functions. No-ops until Init is called, so packages can
// log unconditionally during tests.

// Debugf logs through the global logger.
func Debugf(format string, v ...interface{}) {
	if instance != nil {
		instance.logf(DEBUG, format, v...)
	}
}

// Infof logs through the global logger.
func Infof(format string, v ...interface{}) {
	if instance != nil {
		instance.logf(INFO, format, v...)
	}
}

// Warnf logs through the global logger.
func Warnf(format string, v ...interface{}) {
	if instance != nil {
		instance.logf(WARN, format, v...)
	}
}

// Errorf logs through the global logger.
func Errorf(format string, v ...interface{}) {
	if instance != nil {
		instance.logf(ERROR, format, v...)
	}
}

// Fatalf logs through the global logger and exits.
func Fatalf(format string, v ...interface{}) {
	if instance != nil {
		instance.logf(FATAL, format, v...)
	}
}

// SetLevel changes the global logger's minimum level.
func SetLevel(level Level) {
	if instance != nil {
		instance.SetLevel(level)
	}
}
