package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Output: &buf})

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")
	logger.Error().Msg("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("debug message should be filtered at warn level")
	}
	if strings.Contains(output, "info message") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("warn message should be logged at warn level")
	}
	if !strings.Contains(output, "error message") {
		t.Error("error message should be logged at warn level")
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	for _, level := range []string{"", "bogus"} {
		var buf bytes.Buffer
		logger := New(Config{Level: level, Output: &buf})

		logger.Debug().Msg("debug message")
		logger.Info().Msg("info message")

		output := buf.String()
		if strings.Contains(output, "debug message") {
			t.Errorf("level %q: debug message should be filtered", level)
		}
		if !strings.Contains(output, "info message") {
			t.Errorf("level %q: info message should be logged", level)
		}
	}
}

func TestNewStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Output: &buf})

	logger.Info().Str("site", "main.alloc").Msg("Tracking new site")

	output := buf.String()
	if !strings.Contains(output, `"site":"main.alloc"`) {
		t.Errorf("expected JSON field in output, got %q", output)
	}
	if !strings.Contains(output, `"time"`) {
		t.Errorf("expected timestamp in output, got %q", output)
	}
}

func TestNewPrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Pretty: true, Output: &buf})

	logger.Info().Msg("pretty message")

	// Console writer output is not JSON.
	output := buf.String()
	if !strings.Contains(output, "pretty message") {
		t.Errorf("expected message in output, got %q", output)
	}
	if strings.Contains(output, `"message"`) {
		t.Errorf("pretty output should not be JSON, got %q", output)
	}
}

func TestLevelsParse(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := New(Config{Level: tt.level, Output: &buf})
		if got := logger.GetLevel(); got != tt.want {
			t.Errorf("New(%q) level = %s, want %s", tt.level, got, tt.want)
		}
	}
}
