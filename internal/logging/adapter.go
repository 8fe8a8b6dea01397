package logging

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// LoggerAdapter gives the text Logger the ContextLogger interface.
type LoggerAdapter struct {
	*Logger
	fields map[string]interface{}
}

// NewLoggerAdapter wraps a text logger.
func NewLoggerAdapter(logger *Logger) *LoggerAdapter {
	return &LoggerAdapter{
		Logger: logger,
		fields: make(map[string]interface{}),
	}
}

func (l *LoggerAdapter) with(extra map[string]interface{}) *LoggerAdapter {
	next := &LoggerAdapter{
		Logger: l.Logger,
		fields: make(map[string]interface{}, len(l.fields)+len(extra)),
	}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	for k, v := range extra {
		next.fields[k] = v
	}
	if reqID, ok := extra["request_id"].(string); ok {
		next.Logger = l.Logger.WithPrefix(reqID)
	}
	return next
}

func (l *LoggerAdapter) WithContext(ctx context.Context) ContextLogger {
	return l.with(fieldsFromContext(ctx))
}

func (l *LoggerAdapter) WithField(key string, value interface{}) ContextLogger {
	return l.with(map[string]interface{}{key: value})
}

func (l *LoggerAdapter) WithFields(fields map[string]interface{}) ContextLogger {
	return l.with(fields)
}

func (l *LoggerAdapter) Debug(format string, args ...interface{}) {
	l.Logger.Debug(l.formatWithFields(format), args...)
}

func (l *LoggerAdapter) Info(format string, args ...interface{}) {
	l.Logger.Info(l.formatWithFields(format), args...)
}

func (l *LoggerAdapter) Warn(format string, args ...interface{}) {
	l.Logger.Warn(l.formatWithFields(format), args...)
}

func (l *LoggerAdapter) Error(format string, args ...interface{}) {
	l.Logger.Error(l.formatWithFields(format), args...)
}

func (l *LoggerAdapter) Fatal(format string, args ...interface{}) {
	l.Logger.Fatal(l.formatWithFields(format), args...)
}

// formatWithFields appends the adapter's fields, sorted for stable output.
func (l *LoggerAdapter) formatWithFields(format string) string {
	if len(l.fields) == 0 {
		return format
	}

	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		// Escape % so field values never turn into printf verbs
		parts = append(parts, strings.ReplaceAll(fmt.Sprintf("%s=%v", k, l.fields[k]), "%", "%%"))
	}
	return fmt.Sprintf("%s [%s]", format, strings.Join(parts, " "))
}
