package coach

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/aminelidof/lidof-english-coach/internal/llm"
	"github.com/aminelidof/lidof-english-coach/internal/metrics"
	"github.com/aminelidof/lidof-english-coach/internal/prompt"
)

const DefaultHistoryWindow = 8

var systemPrompt = prompt.New("coach_system", `ROLE: Elite English Coach (Elias). Level: {{level}}. Scenario: {{scenario}}.
You are a warm, professional mentor. Speak naturally but keep it simple for {{level}} learners.
Answer with this JSON object and nothing else:
{
  "reply": "Your natural spoken response",
  "analysis": {
    "corrected": "Native version of the learner's last sentence",
    "rule": "Very short grammar tip in {{tip_language}} ({{max_rule_words}} words max)",
    "score": 0-100
  }
}`)

// AnalyzerConfig controls the chat request the analyzer sends.
type AnalyzerConfig struct {
	Provider      string // empty uses the gateway default
	Model         string
	Temperature   float64
	HistoryWindow int
	TipLanguage   string
}

// Analyzer asks the language model for a reply and feedback on the
// learner's utterance.
type Analyzer struct {
	gateway  llm.Gateway
	cfg      AnalyzerConfig
	recorder metrics.Recorder
	logger   *slog.Logger
}

func NewAnalyzer(gw llm.Gateway, cfg AnalyzerConfig, rec metrics.Recorder, logger *slog.Logger) *Analyzer {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.TipLanguage == "" {
		cfg.TipLanguage = "French"
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{gateway: gw, cfg: cfg, recorder: rec, logger: logger}
}

// Analyze sends one chat request and parses the answer. It never fails:
// transport errors and unusable answers both yield FallbackResult.
func (a *Analyzer) Analyze(ctx context.Context, userInput string, history []Utterance, scenario Scenario, level Level) InteractionResult {
	messages, err := a.buildMessages(userInput, history, scenario, level)
	if err != nil {
		return a.fallback(ctx, "build prompt", err)
	}

	resp, err := a.gateway.Chat(ctx, llm.ChatRequest{
		Provider:    a.cfg.Provider,
		Model:       a.cfg.Model,
		Messages:    messages,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		return a.fallback(ctx, "chat completion", err)
	}

	result, err := parseReply(resp.Content)
	if err != nil {
		a.logger.Debug("unparseable coach answer", "content", resp.Content)
		return a.fallback(ctx, "parse answer", err)
	}

	a.logger.Debug("turn analysed",
		"scenario", scenario,
		"level", level,
		"score", result.Analysis.Score,
		"latency_ms", resp.LatencyMs,
	)
	return result
}

func (a *Analyzer) buildMessages(userInput string, history []Utterance, scenario Scenario, level Level) ([]llm.Message, error) {
	system, err := systemPrompt.Render(map[string]string{
		"level":          string(level),
		"scenario":       string(scenario),
		"tip_language":   a.cfg.TipLanguage,
		"max_rule_words": strconv.Itoa(maxRuleWords),
	})
	if err != nil {
		return nil, err
	}

	window := history
	if len(window) > a.cfg.HistoryWindow {
		window = window[len(window)-a.cfg.HistoryWindow:]
	}

	messages := make([]llm.Message, 0, len(window)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, u := range window {
		messages = append(messages, llm.Message{Role: string(u.Role), Content: u.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userInput})
	return messages, nil
}

func (a *Analyzer) fallback(ctx context.Context, stage string, err error) InteractionResult {
	a.logger.Warn("analysis failed, using fallback reply", "stage", stage, "error", err)
	a.recorder.RecordFallback(ctx, metrics.KindAnalysis)
	return FallbackResult()
}
