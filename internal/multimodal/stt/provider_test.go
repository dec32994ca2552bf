package stt

import (
	"testing"
	"time"

	"github.com/aminelidof/lidof-english-coach/internal/config"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		backend string
		want    string
		wantErr bool
	}{
		{"", "openai-whisper", false},
		{"openai", "openai-whisper", false},
		{"local", "local-whisper", false},
		{"vosk", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			p, err := NewProvider(config.STTConfig{Backend: tt.backend}, time.Second)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p.Name() != tt.want {
				t.Errorf("Name = %q, want %q", p.Name(), tt.want)
			}
		})
	}
}
