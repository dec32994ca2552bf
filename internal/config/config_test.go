package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LLM.DefaultModel != "llama-3.3-70b-versatile" {
		t.Errorf("DefaultModel = %q", cfg.LLM.DefaultModel)
	}
	if cfg.STT.OpenAIModel != "whisper-large-v3" || cfg.STT.Language != "en" {
		t.Errorf("STT = %+v", cfg.STT)
	}
	if cfg.Coach.HistoryWindow != 8 {
		t.Errorf("HistoryWindow = %d, want 8", cfg.Coach.HistoryWindow)
	}
	if cfg.Coach.CallTimeout != 30*time.Second {
		t.Errorf("CallTimeout = %s", cfg.Coach.CallTimeout)
	}
	if cfg.LLM.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", cfg.LLM.MaxRetries)
	}
	if cfg.STT.OpenAIKey != "gsk-test" || cfg.TTS.OpenAIKey != "gsk-test" {
		t.Error("API key should be shared by every backend")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_LegacyKeyName(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("GROQ_KEY", "legacy")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "legacy" {
		t.Errorf("APIKey = %q, want legacy", cfg.LLM.APIKey)
	}
}

func TestValidate_MissingKeyIsFatal(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("GROQ_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error without API key")
	}
	if !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Errorf("error %q should name the missing key", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SERVER_PORT", "eighty"},
		{"COACH_CALL_TIMEOUT", "soon"},
		{"LLM_TEMPERATURE", "warm"},
		{"REDIS_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" http://a.test, ,http://b.test ")
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("splitList = %v", got)
	}
}

func TestLogConfig_SlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (LogConfig{Level: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
