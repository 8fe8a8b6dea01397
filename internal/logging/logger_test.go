package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		logLevel  string
		testFunc  func(*Logger)
		shouldLog bool
	}{
		{
			name:      "debug level logs everything",
			logLevel:  "debug",
			testFunc:  func(l *Logger) { l.Debug("test") },
			shouldLog: true,
		},
		{
			name:      "info level skips debug",
			logLevel:  "info",
			testFunc:  func(l *Logger) { l.Debug("test") },
			shouldLog: false,
		},
		{
			name:      "info level logs info",
			logLevel:  "info",
			testFunc:  func(l *Logger) { l.Info("test") },
			shouldLog: true,
		},
		{
			name:      "error level only logs errors",
			logLevel:  "error",
			testFunc:  func(l *Logger) { l.Warn("test") },
			shouldLog: false,
		},
		{
			name:      "warning alias",
			logLevel:  "warning",
			testFunc:  func(l *Logger) { l.Warn("test") },
			shouldLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(&buf, "test: ", tt.logLevel)
			tt.testFunc(logger)

			logged := buf.Len() > 0
			if logged != tt.shouldLog {
				t.Errorf("Expected shouldLog=%v, but logged=%v (output: %q)", tt.shouldLog, logged, buf.String())
			}
		})
	}
}

func TestLoggerFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "test: ", "info")

	logger.Info("loaded %d games", 3, "file", "club.pgn")

	output := buf.String()
	if !strings.Contains(output, "[INFO] loaded 3 games file=club.pgn") {
		t.Errorf("Unexpected output: %q", output)
	}
	if !strings.HasPrefix(output, "test: ") {
		t.Errorf("Expected prefix, got %q", output)
	}
}

func TestLoggerOddArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "", "info")

	logger.Info("engine line", "depth", 12, "dangling")

	if !strings.Contains(buf.String(), "engine line depth=12 extra=dangling") {
		t.Errorf("Unexpected output: %q", buf.String())
	}
}

func TestLoggerMissingArgsKeepsFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "", "info")

	logger.Info("progress 100%% after %d moves")

	if !strings.Contains(buf.String(), "progress 100%% after %d moves") {
		t.Errorf("Unexpected output: %q", buf.String())
	}
}

func TestLoggerWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "app ", "debug").WithPrefix("req_1")

	logger.Debug("hello")

	if !strings.HasPrefix(buf.String(), "app [req_1] ") {
		t.Errorf("Unexpected prefix: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warn":    WarnLevel,
		"error":   ErrorLevel,
		"verbose": InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "", "error")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("Expected no output, got %q", buf.String())
	}

	logger.SetLevel(InfoLevel)
	if logger.GetLevel() != InfoLevel {
		t.Errorf("GetLevel() = %v, want INFO", logger.GetLevel())
	}
	logger.Info("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("Expected output after SetLevel, got %q", buf.String())
	}
}
