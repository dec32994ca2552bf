package stt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aminelidof/lidof-english-coach/internal/metrics"
	"github.com/aminelidof/lidof-english-coach/pkg/contenthash"
)

// Transcriber turns raw recorded audio into text. It never fails: any error
// is logged, counted and reported as an empty transcript, which callers treat
// as "no speech detected".
type Transcriber struct {
	provider STTProvider
	language string
	tempDir  string
	recorder metrics.Recorder
	logger   *slog.Logger
}

func NewTranscriber(p STTProvider, language, tempDir string, rec metrics.Recorder, logger *slog.Logger) *Transcriber {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{
		provider: p,
		language: language,
		tempDir:  tempDir,
		recorder: rec,
		logger:   logger,
	}
}

// Transcribe writes audio to a transient file named after its content hash,
// submits it and removes the file on every path.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) string {
	if len(audio) == 0 {
		t.logger.Debug("empty audio capture, nothing to transcribe")
		return ""
	}

	text, err := t.transcribe(ctx, audio)
	if err != nil {
		t.logger.Warn("transcription failed, treating as silence",
			"provider", t.provider.Name(),
			"bytes", len(audio),
			"error", err,
		)
		t.recorder.RecordFallback(ctx, metrics.KindTranscription)
		return ""
	}
	return strings.TrimSpace(text)
}

func (t *Transcriber) transcribe(ctx context.Context, audio []byte) (string, error) {
	digest := contenthash.Sum(audio)

	// The random suffix keeps two in-flight captures with identical bytes
	// from removing each other's file.
	f, err := os.CreateTemp(t.tempDir, "t_"+digest+"_*"+sniffExtension(audio))
	if err != nil {
		return "", fmt.Errorf("create transient audio file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return "", fmt.Errorf("write transient audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close transient audio file: %w", err)
	}

	resp, err := t.provider.Transcribe(ctx, TranscriptionRequest{
		FilePath: path,
		Language: t.language,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// sniffExtension picks a filename extension from the container magic so the
// remote service can detect the format. Unknown input is sent as WAV.
func sniffExtension(audio []byte) string {
	switch {
	case bytes.HasPrefix(audio, []byte("RIFF")):
		return ".wav"
	case bytes.HasPrefix(audio, []byte("OggS")):
		return ".ogg"
	case bytes.HasPrefix(audio, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return ".webm"
	case bytes.HasPrefix(audio, []byte("fLaC")):
		return ".flac"
	case bytes.HasPrefix(audio, []byte("ID3")), len(audio) > 1 && audio[0] == 0xFF && audio[1]&0xE0 == 0xE0:
		return ".mp3"
	case len(audio) > 8 && string(audio[4:8]) == "ftyp":
		return ".m4a"
	default:
		return ".wav"
	}
}
