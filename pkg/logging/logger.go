package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// NewJSONLogger creates a new JSON logger
func NewJSONLogger(writer io.Writer, level Level) *JSONLogger {
	return &JSONLogger{
		out:   &output{w: writer},
		level: &levelVar{level: level},
	}
}

// NewDefaultLogger creates a logger that writes to stderr at INFO level.
// Stdout is left to command output.
func NewDefaultLogger() *JSONLogger {
	return NewJSONLogger(os.Stderr, InfoLevel)
}

func (l *JSONLogger) write(level Level, msg string, fields []Field) {
	if !l.Enabled(level) {
		return
	}

	entry := LogEntry{
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Level:   level.String(),
		Message: msg,
	}
	if n := len(l.fields) + len(fields); n > 0 {
		entry.Fields = make(map[string]any, n)
		for _, f := range l.fields {
			entry.Fields[f.Key] = f.Value
		}
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"level":"ERROR","msg":"unencodable log entry","error":%q}`, err.Error()))
	}
	data = append(data, '\n')

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	_, _ = l.out.w.Write(data)
}

func (l *JSONLogger) Debug(msg string, fields ...Field) { l.write(DebugLevel, msg, fields) }
func (l *JSONLogger) Info(msg string, fields ...Field)  { l.write(InfoLevel, msg, fields) }
func (l *JSONLogger) Warn(msg string, fields ...Field)  { l.write(WarnLevel, msg, fields) }
func (l *JSONLogger) Error(msg string, fields ...Field) { l.write(ErrorLevel, msg, fields) }

// With creates a child logger with the given fields pre-set. The child shares
// its parent's writer and level.
func (l *JSONLogger) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &JSONLogger{out: l.out, level: l.level, fields: merged}
}

// SetLevel sets the minimum log level
func (l *JSONLogger) SetLevel(level Level) {
	l.level.mu.Lock()
	defer l.level.mu.Unlock()
	l.level.level = level
}

// GetLevel returns the current log level
func (l *JSONLogger) GetLevel() Level {
	l.level.mu.RLock()
	defer l.level.mu.RUnlock()
	return l.level.level
}

// Enabled reports whether level passes the current threshold
func (l *JSONLogger) Enabled(level Level) bool {
	return level >= l.GetLevel()
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger
)

// DefaultLogger returns the process-wide logger, created on first use from
// the LOG_LEVEL environment variable.
func DefaultLogger() Logger {
	defaultMu.RLock()
	logger := defaultLogger
	defaultMu.RUnlock()
	if logger != nil {
		return logger
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		l := NewDefaultLogger()
		if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
			l.SetLevel(ParseLevel(lvl))
		}
		defaultLogger = l
	}
	return defaultLogger
}

// SetDefaultLogger replaces the process-wide logger
func SetDefaultLogger(logger Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// OrDefault returns logger, or the default logger when it is nil
func OrDefault(logger Logger) Logger {
	if logger == nil {
		return DefaultLogger()
	}
	return logger
}

// StartTimer begins timing an operation
func StartTimer(logger Logger, msg string, fields ...Field) *TimedOperation {
	return &TimedOperation{
		logger: logger,
		msg:    msg,
		start:  time.Now(),
		fields: fields,
	}
}

// Elapsed returns the time since the timer started
func (t *TimedOperation) Elapsed() time.Duration {
	return time.Since(t.start)
}

// End logs the operation at INFO with its duration
func (t *TimedOperation) End() {
	t.EndWithLevel(InfoLevel, t.msg)
}

// EndWithLevel logs the operation at the given level with its duration
func (t *TimedOperation) EndWithLevel(level Level, msg string) {
	if !t.logger.Enabled(level) {
		return
	}
	fields := append(append([]Field(nil), t.fields...), Latency(t.Elapsed()))
	switch level {
	case DebugLevel:
		t.logger.Debug(msg, fields...)
	case InfoLevel:
		t.logger.Info(msg, fields...)
	case WarnLevel:
		t.logger.Warn(msg, fields...)
	default:
		t.logger.Error(msg, fields...)
	}
}

// EndError logs the operation as an error with its duration
func (t *TimedOperation) EndError(err error) {
	fields := append(append([]Field(nil), t.fields...), Latency(t.Elapsed()), Error(err))
	t.logger.Error(t.msg, fields...)
}
