package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("Expected default format json, got %s", cfg.Format)
	}
	if cfg.Output == nil {
		t.Error("Expected default output to be set")
	}
}

func TestSetup_Formats(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		contains string
	}{
		{name: "json", format: FormatJSON, contains: `"message":"hello"`},
		{name: "console", format: FormatConsole, contains: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{Level: LevelInfo, Format: tt.format, Output: buf})

			logger.Info().Msg("hello")

			if !strings.Contains(buf.String(), tt.contains) {
				t.Errorf("Expected output to contain %q, got %q", tt.contains, buf.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsValidLevel(t *testing.T) {
	if !IsValidLevel("warn") {
		t.Error("warn should be valid")
	}
	if IsValidLevel("trace") {
		t.Error("trace should not be valid")
	}
}

func TestNewLogger_WithSource(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Format: FormatJSON, Output: buf})

	logger := WithSource(NewLogger("harvest"), "users")
	logger.Info().Msg("page fetched")

	output := buf.String()
	for _, want := range []string{`"component":"harvest"`, `"source":"users"`, "page fetched"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got %q", want, output)
		}
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Format: FormatJSON, Output: buf})

	logger := NewLogger("test")
	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("messages below warn should be filtered, got %q", output)
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Warn message should be included at Warn level")
	}
}
