package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Level represents the logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel parses a string into a Level, defaulting to INFO.
func ParseLevel(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DebugLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

type Logger struct {
	out   *log.Logger
	err   *log.Logger
	level Level
}

var defaultLogger *Logger

func init() {
	defaultLogger = NewWithLevel(ParseLevel(os.Getenv("BCR_LOG_LEVEL")))
}

// New creates a logger at INFO level.
func New() *Logger {
	return NewWithLevel(InfoLevel)
}

// NewWithLevel creates a logger at the given level.
func NewWithLevel(level Level) *Logger {
	return &Logger{
		out:   log.New(os.Stdout, "", 0),
		err:   log.New(os.Stderr, "", 0),
		level: level,
	}
}

// SetLevel changes the default logger's level.
func SetLevel(level Level) {
	defaultLogger.level = level
}

func (l *Logger) log(dst *log.Logger, level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	dst.Println(fmt.Sprintf("[%s] %s: %s", ts, level, fmt.Sprintf(format, args...)))
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(l.out, DebugLevel, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(l.out, InfoLevel, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(l.out, WarnLevel, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(l.err, ErrorLevel, format, args...) }

// Package-level convenience functions using the default logger.

func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }
