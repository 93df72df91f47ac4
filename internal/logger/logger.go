package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	pid          = os.Getpid()
	levelStrings = map[LogLevel]string{
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
	}
)

// Fields carries the structured context of a log line
type Fields = map[string]interface{}

// Logger writes one line per message with timestamp, PID, calling function
// and sorted key=value context
type Logger struct {
	mu       sync.Mutex
	minLevel LogLevel
	out      io.Writer
	errOut   io.Writer
}

// NewLogger creates a logger writing INFO and below to stdout and ERROR to stderr
func NewLogger(minLevel LogLevel) *Logger {
	return &Logger{minLevel: minLevel, out: os.Stdout, errOut: os.Stderr}
}

var defaultLogger = NewLogger(INFO)

// ParseLevel converts a configured level name
func ParseLevel(name string) (LogLevel, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for level, s := range levelStrings {
		if s == name {
			return level, nil
		}
	}
	return INFO, fmt.Errorf("unknown log level %q", name)
}

// getFunctionName extracts the calling function name
func getFunctionName(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}

	fullName := runtime.FuncForPC(pc).Name()
	parts := strings.Split(fullName, "/")
	name := parts[len(parts)-1]

	if idx := strings.LastIndex(name, "."); idx != -1 {
		return name[idx+1:]
	}
	return name
}

func formatMessage(level LogLevel, funcName, message string, fields Fields) string {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var contextStr string
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, fields[k]))
		}
		contextStr = " | " + strings.Join(pairs, " ")
	}

	return fmt.Sprintf("[%s] [PID:%d] [%s] %s: %s%s",
		timestamp, pid, funcName, levelStrings[level], message, contextStr)
}

func (l *Logger) log(level LogLevel, message string, fields []Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	var ctx Fields
	if len(fields) > 0 {
		ctx = fields[0]
	}

	// Skip: log -> Debug/Info/Warn/Error -> actual caller
	msg := formatMessage(level, getFunctionName(3), message, ctx)

	if level >= ERROR {
		fmt.Fprintln(l.errOut, msg)
	} else {
		fmt.Fprintln(l.out, msg)
	}
}

func (l *Logger) Debug(message string, fields ...Fields) { l.log(DEBUG, message, fields) }
func (l *Logger) Info(message string, fields ...Fields)  { l.log(INFO, message, fields) }
func (l *Logger) Warn(message string, fields ...Fields)  { l.log(WARN, message, fields) }
func (l *Logger) Error(message string, fields ...Fields) { l.log(ERROR, message, fields) }

// SetOutput redirects both streams, mostly for tests
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
	l.errOut = w
}

func (l *Logger) SetMinLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// Package-level convenience functions using the default logger. They call
// log directly so the caller skip depth matches the methods above.

func Debug(message string, fields ...Fields) { defaultLogger.log(DEBUG, message, fields) }
func Info(message string, fields ...Fields)  { defaultLogger.log(INFO, message, fields) }
func Warn(message string, fields ...Fields)  { defaultLogger.log(WARN, message, fields) }
func Error(message string, fields ...Fields) { defaultLogger.log(ERROR, message, fields) }

// SetMinLevel sets the minimum log level for the default logger
func SetMinLevel(level LogLevel) {
	defaultLogger.SetMinLevel(level)
}

// SetOutput redirects the default logger
func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}
