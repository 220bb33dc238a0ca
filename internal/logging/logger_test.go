package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"info", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if err != nil {
			t.Errorf("parseLevel(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := parseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestInitializeRejectsUnknownFormat(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize("info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestInitializeEnvOverride(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "debug")
	t.Cleanup(func() { logger = nil })

	if err := Initialize("error", "json"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected env level debug to override configured error")
	}
}

func TestGetLoggerUninitializedIsNop(t *testing.T) {
	logger = nil
	// Must not panic
	Info("dropped", zap.String("k", "v"))
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("expected nop logger before Initialize")
	}
}

func TestSetLoggerRoutesPackageFunctions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { logger = nil })

	Debug("d")
	Info("i", zap.Int("n", 1))
	Warn("w")
	Error("e")

	if logs.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", logs.Len())
	}
	entry := logs.FilterMessage("i").All()[0]
	if entry.ContextMap()["n"] != int64(1) {
		t.Errorf("expected field n=1, got %v", entry.ContextMap()["n"])
	}
}
