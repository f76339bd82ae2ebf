package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelWarn {
		t.Errorf("Expected default level to be warn, got %s", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Expected default pretty to be false")
	}
	if cfg.Output == nil {
		t.Error("Expected default output to be set")
	}
}

func TestSetup_WritesAtLevel(t *testing.T) {
	tests := []struct {
		name  string
		level LogLevel
		write func(zerolog.Logger)
	}{
		{name: "debug", level: LevelDebug, write: func(l zerolog.Logger) { l.Debug().Msg("hello") }},
		{name: "info", level: LevelInfo, write: func(l zerolog.Logger) { l.Info().Msg("hello") }},
		{name: "warn", level: LevelWarn, write: func(l zerolog.Logger) { l.Warn().Msg("hello") }},
		{name: "error", level: LevelError, write: func(l zerolog.Logger) { l.Error().Msg("hello") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(Setup(Config{Level: tt.level, Output: buf}))

			if !strings.Contains(buf.String(), `"message":"hello"`) {
				t.Errorf("output = %q, want JSON message", buf.String())
			}
		})
	}
}

func TestSetup_Pretty(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})
	logger.Info().Str("section_id", "1").Msg("pretty line")

	out := buf.String()
	if strings.Contains(out, `"message"`) {
		t.Errorf("pretty output should not be JSON: %q", out)
	}
	if !strings.Contains(out, "pretty line") || !strings.Contains(out, "section_id=") {
		t.Errorf("pretty output = %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   LogLevel
		want    zerolog.Level
		wantErr bool
	}{
		{LevelDebug, zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{LevelError, zerolog.ErrorLevel, false},
		{LevelDisabled, zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("batch")
	logger.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, `"component":"batch"`) {
		t.Errorf("Expected component field, got %q", output)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})

	logger := NewLogger("test")
	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")
	logger.Error().Msg("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("messages below warn leaked: %q", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("warn and error messages missing: %q", output)
	}
}
