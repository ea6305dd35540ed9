package logging

import (
	"log/slog"
	"testing"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		logger := New(tt.level)
		if logger == nil || logger.Logger == nil {
			t.Fatalf("New(%q) returned nil logger", tt.level)
		}
		if !logger.Enabled(nil, tt.want) {
			t.Errorf("New(%q): expected level %v to be enabled", tt.level, tt.want)
		}
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default() returned nil")
	}
	if logger.Enabled(nil, slog.LevelDebug) {
		t.Error("default logger should not enable debug")
	}
}

func TestWithComponent(t *testing.T) {
	logger := Default().WithComponent("orchestrator")
	if logger == nil || logger.Logger == nil {
		t.Fatal("WithComponent returned nil")
	}

	var nilLogger *Logger
	if nilLogger.WithComponent("store") == nil {
		t.Fatal("WithComponent on nil receiver should fall back to default")
	}
}
