package coach

import (
	"context"
	"log/slog"
	"time"

	"github.com/aminelidof/lidof-english-coach/internal/metrics"
	"github.com/aminelidof/lidof-english-coach/pkg/contenthash"
)

// Transcriber converts captured audio to text. An empty string means no
// speech was detected or the service failed.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) string
}

// DialogueAnalyzer produces the coach's answer for a transcript.
type DialogueAnalyzer interface {
	Analyze(ctx context.Context, userInput string, history []Utterance, scenario Scenario, level Level) InteractionResult
}

// Synthesizer renders reply text as audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// SkipReason explains why a turn produced no reply.
type SkipReason string

const (
	SkipDuplicate SkipReason = "duplicate"
	SkipNoSpeech  SkipReason = "no_speech"
)

// TurnInput is everything a turn needs from the caller's session.
type TurnInput struct {
	Audio           []byte
	History         []Utterance
	Scenario        Scenario
	Level           Level
	LastAudioDigest string
	Voice           string // empty uses the synthesizer default
}

// TurnOutput carries the new session state back to the caller. On a skipped
// turn History is the input history and Result is nil.
type TurnOutput struct {
	Skipped     bool
	Reason      SkipReason
	AudioDigest string
	Transcript  string
	History     []Utterance
	Result      *InteractionResult
	ReplyAudio  []byte
}

// Pipeline runs one coaching turn. It holds no per-session state and may be
// shared by every session.
type Pipeline struct {
	stt         Transcriber
	analyzer    DialogueAnalyzer
	tts         Synthesizer
	callTimeout time.Duration
	recorder    metrics.Recorder
	logger      *slog.Logger
}

func NewPipeline(stt Transcriber, analyzer DialogueAnalyzer, tts Synthesizer, callTimeout time.Duration, rec metrics.Recorder, logger *slog.Logger) *Pipeline {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		stt:         stt,
		analyzer:    analyzer,
		tts:         tts,
		callTimeout: callTimeout,
		recorder:    rec,
		logger:      logger,
	}
}

// RunTurn transcribes, analyses and voices one learner turn.
func (p *Pipeline) RunTurn(ctx context.Context, in TurnInput) TurnOutput {
	digest := contenthash.Sum(in.Audio)
	if in.LastAudioDigest != "" && digest == in.LastAudioDigest {
		p.logger.Debug("duplicate audio capture ignored", "digest", digest)
		return TurnOutput{Skipped: true, Reason: SkipDuplicate, AudioDigest: digest, History: in.History}
	}

	text := p.transcribe(ctx, in.Audio)
	if text == "" {
		p.logger.Info("no speech detected", "digest", digest)
		return TurnOutput{Skipped: true, Reason: SkipNoSpeech, AudioDigest: digest, History: in.History}
	}

	result := p.analyze(ctx, text, in)

	audio, err := p.synthesize(ctx, result.Reply, in.Voice)
	if err != nil {
		p.logger.Warn("speech synthesis failed, continuing with text only", "error", err)
		p.recorder.RecordFallback(ctx, metrics.KindSynthesis)
		audio = nil
	}

	history := make([]Utterance, 0, len(in.History)+2)
	history = append(history, in.History...)
	history = append(history,
		Utterance{Role: RoleUser, Content: text},
		Utterance{Role: RoleAssistant, Content: result.Reply},
	)

	return TurnOutput{
		AudioDigest: digest,
		Transcript:  text,
		History:     history,
		Result:      &result,
		ReplyAudio:  audio,
	}
}

func (p *Pipeline) transcribe(ctx context.Context, audio []byte) string {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	return p.stt.Transcribe(ctx, audio)
}

func (p *Pipeline) analyze(ctx context.Context, text string, in TurnInput) InteractionResult {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	return p.analyzer.Analyze(ctx, text, in.History, in.Scenario, in.Level)
}

func (p *Pipeline) synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	return p.tts.Synthesize(ctx, text, voice)
}

func (p *Pipeline) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.callTimeout)
}
