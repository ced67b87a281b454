package app

import (
	"context"
	"log/slog"
	"testing"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := Run(context.Background(), []string{"migrate"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
