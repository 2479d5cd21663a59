package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"
)

const logDirEnvVar = "GRIDPILOT_LOG_DIR"

// Logger defines a minimal, printf-style logging contract.
//
// Every subsystem depends on this interface so tests can inject Nop() and the
// host application can fan out to its own sinks via Multi.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if IsNil(logger) {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	if len(flattened) == 0 {
		return Nop()
	}
	if len(flattened) == 1 {
		return flattened[0]
	}
	return &multiLogger{loggers: flattened}
}

func (m *multiLogger) Debug(format string, args ...any) {
	for _, l := range m.loggers {
		l.Debug(format, args...)
	}
}

func (m *multiLogger) Info(format string, args ...any) {
	for _, l := range m.loggers {
		l.Info(format, args...)
	}
}

func (m *multiLogger) Warn(format string, args ...any) {
	for _, l := range m.loggers {
		l.Warn(format, args...)
	}
}

func (m *multiLogger) Error(format string, args ...any) {
	for _, l := range m.loggers {
		l.Error(format, args...)
	}
}

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	}
	return "UNKNOWN"
}

var (
	sinkOnce sync.Once
	sink     *log.Logger
)

// componentLogger writes leveled lines tagged with a component name to the
// shared process sink: gridpilot-debug.log under $GRIDPILOT_LOG_DIR, or
// stderr when the directory is unavailable.
type componentLogger struct {
	component string
	level     LogLevel
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component, level: DEBUG}
}

func processSink() *log.Logger {
	sinkOnce.Do(func() {
		dir := os.Getenv(logDirEnvVar)
		if dir == "" {
			sink = log.New(os.Stderr, "", 0)
			return
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			sink = log.New(os.Stderr, "", 0)
			return
		}
		path := filepath.Join(dir, "gridpilot-debug.log")
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			sink = log.New(os.Stderr, "", 0)
			return
		}
		sink = log.New(file, "", 0)
	})
	return sink
}

func (c *componentLogger) logf(level LogLevel, format string, args ...any) {
	if level < c.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	processSink().Printf("[%s] [%s] [%s] %s", ts, level, c.component, msg)
}

func (c *componentLogger) Debug(format string, args ...any) { c.logf(DEBUG, format, args...) }
func (c *componentLogger) Info(format string, args ...any)  { c.logf(INFO, format, args...) }
func (c *componentLogger) Warn(format string, args ...any)  { c.logf(WARN, format, args...) }
func (c *componentLogger) Error(format string, args ...any) { c.logf(ERROR, format, args...) }
