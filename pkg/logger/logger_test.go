package logger

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"nonsense", slog.LevelWarn},
		{"", slog.LevelWarn},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if err != nil {
			t.Fatalf("ParseLevel(%q) returned error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestOpenLogFile(t *testing.T) {
	path := t.TempDir() + "/perch.log"

	file, cleanup, err := OpenLogFile(path)
	if err != nil {
		t.Fatalf("OpenLogFile failed: %v", err)
	}
	defer cleanup()

	if _, err := file.WriteString("hello\n"); err != nil {
		t.Errorf("write to log file failed: %v", err)
	}
}

func TestGetLoggerInitializesDefault(t *testing.T) {
	defaultLogger = nil
	if GetLogger() == nil {
		t.Fatal("expected a non-nil default logger")
	}
}

func TestSetLevelAdjustsRunningLogger(t *testing.T) {
	Init(slog.LevelInfo, os.Stderr, "simple")
	defer SetLevel(slog.LevelInfo)

	ctx := context.Background()
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		t.Fatal("debug should be disabled at info level")
	}

	SetLevel(slog.LevelDebug)
	if !slog.Default().Enabled(ctx, slog.LevelDebug) {
		t.Fatal("debug should be enabled after SetLevel")
	}
}
