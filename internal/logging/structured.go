package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"
)

// StructuredLogger writes one JSON object per entry.
type StructuredLogger struct {
	level      Level
	service    string
	version    string
	mu         *sync.RWMutex
	encoder    *json.Encoder
	fields     map[string]interface{}
	timeFormat string
}

// LogEntry represents a structured log entry.
type LogEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         string                 `json:"level"`
	Service       string                 `json:"service"`
	Version       string                 `json:"version,omitempty"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	RequestID     string                 `json:"request_id,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	Caller        string                 `json:"caller,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// NewStructuredLogger creates a structured logger on stderr.
func NewStructuredLogger(service, version, level string) *StructuredLogger {
	return NewStructuredLoggerWithWriter(os.Stderr, service, version, level)
}

// NewStructuredLoggerWithWriter creates a structured logger on w.
func NewStructuredLoggerWithWriter(w io.Writer, service, version, level string) *StructuredLogger {
	return &StructuredLogger{
		level:      ParseLevel(level),
		service:    service,
		version:    version,
		mu:         &sync.RWMutex{},
		encoder:    json.NewEncoder(w),
		fields:     make(map[string]interface{}),
		timeFormat: time.RFC3339Nano,
	}
}

// derive copies the logger with extra fields. Children share the parent's
// encoder and lock so concurrent entries never interleave.
func (l *StructuredLogger) derive(extra map[string]interface{}) *StructuredLogger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	child := &StructuredLogger{
		level:      l.level,
		service:    l.service,
		version:    l.version,
		mu:         l.mu,
		encoder:    l.encoder,
		fields:     make(map[string]interface{}, len(l.fields)+len(extra)),
		timeFormat: l.timeFormat,
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range extra {
		child.fields[k] = v
	}
	return child
}

// WithContext returns a logger carrying correlation, request and session IDs from ctx.
func (l *StructuredLogger) WithContext(ctx context.Context) ContextLogger {
	return l.derive(fieldsFromContext(ctx))
}

// WithFields returns a logger with additional fields.
func (l *StructuredLogger) WithFields(fields map[string]interface{}) ContextLogger {
	return l.derive(fields)
}

// WithField returns a logger with an additional field.
func (l *StructuredLogger) WithField(key string, value interface{}) ContextLogger {
	return l.derive(map[string]interface{}{key: value})
}

func (l *StructuredLogger) log(level Level, message string, args ...interface{}) {
	if !l.shouldLog(level) {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(l.timeFormat),
		Level:     level.String(),
		Service:   l.service,
		Version:   l.version,
		Message:   message,
	}

	// Leading args satisfy printf verbs, the remainder are key-value pairs
	verbs := countVerbs(message)
	if verbs > 0 && len(args) >= verbs {
		entry.Message = fmt.Sprintf(message, args[:verbs]...)
		args = args[verbs:]
	}
	addArgsAsFields(&entry, args)

	if _, file, line, ok := runtime.Caller(2); ok {
		entry.Caller = fmt.Sprintf("%s:%d", file, line)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, v := range l.fields {
		id, _ := v.(string)
		switch k {
		case "correlation_id":
			entry.CorrelationID = id
		case "request_id":
			entry.RequestID = id
		case "session_id":
			entry.SessionID = id
		default:
			if entry.Fields == nil {
				entry.Fields = make(map[string]interface{})
			}
			entry.Fields[k] = v
		}
	}

	if err := l.encoder.Encode(entry); err != nil {
		fmt.Fprintf(os.Stderr, "[%s] %s: %s (json encoding failed: %v)\n",
			entry.Timestamp, entry.Level, entry.Message, err)
	}
}

func addArgsAsFields(entry *LogEntry, args []interface{}) {
	if len(args) == 0 {
		return
	}
	if entry.Fields == nil {
		entry.Fields = make(map[string]interface{})
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		value := args[i+1]
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		entry.Fields[key] = value
	}
	if len(args)%2 == 1 {
		entry.Fields["extra"] = args[len(args)-1]
	}
}

func (l *StructuredLogger) Debug(message string, args ...interface{}) {
	l.log(DebugLevel, message, args...)
}

func (l *StructuredLogger) Info(message string, args ...interface{}) {
	l.log(InfoLevel, message, args...)
}

func (l *StructuredLogger) Warn(message string, args ...interface{}) {
	l.log(WarnLevel, message, args...)
}

func (l *StructuredLogger) Error(message string, args ...interface{}) {
	l.log(ErrorLevel, message, args...)
}

// Fatal logs at error level and exits.
func (l *StructuredLogger) Fatal(message string, args ...interface{}) {
	l.log(ErrorLevel, message, args...)
	os.Exit(1)
}

func (l *StructuredLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *StructuredLogger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *StructuredLogger) shouldLog(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}
