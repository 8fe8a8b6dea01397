package logging

import (
	"io"
	"os"
	"strings"

	"github.com/dmmcquay/chess-study/internal/config"
)

// LogFormat represents the log output format.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// Config represents logging configuration.
type Config struct {
	Level   string
	Format  LogFormat
	Service string
	Version string
	Prefix  string
	// File, when it has a path, receives a copy of every entry.
	File *config.LogFileConfig
	// Output replaces stderr; used by tests.
	Output io.Writer
}

// NewLoggerFromConfig creates a logger based on configuration. The returned
// closer is non-nil only when a log file was opened.
func NewLoggerFromConfig(cfg *Config) (ContextLogger, io.Closer) {
	format := LogFormat(strings.ToLower(string(cfg.Format)))
	if format == "" {
		if envFormat := os.Getenv("CHESS_STUDY_LOG_FORMAT"); envFormat != "" {
			format = LogFormat(strings.ToLower(envFormat))
		} else {
			format = FormatJSON
		}
	}

	var writer io.Writer = os.Stderr
	if cfg.Output != nil {
		writer = cfg.Output
	}

	var fileWriter *FileWriter
	if cfg.File != nil && cfg.File.Path != "" {
		fw, err := NewFileWriter(cfg.File)
		if err != nil {
			// Continue without file logging
			NewLoggerWithWriter(writer, cfg.Prefix, "error").Error("Failed to create file writer: %v", err)
		} else {
			fileWriter = fw
			writer = io.MultiWriter(writer, fw)
		}
	}

	var logger ContextLogger
	switch format {
	case FormatText:
		logger = NewLoggerAdapter(NewLoggerWithWriter(writer, cfg.Prefix, cfg.Level))
	default:
		logger = NewStructuredLoggerWithWriter(writer, cfg.Service, cfg.Version, cfg.Level)
	}

	if fileWriter != nil {
		return logger, fileWriter
	}
	return logger, nil
}

// NewTestLogger returns a debug-level text logger discarding output unless w is set.
func NewTestLogger(w io.Writer) ContextLogger {
	if w == nil {
		w = io.Discard
	}
	return NewLoggerAdapter(NewLoggerWithWriter(w, "test: ", "debug"))
}
