package coach

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const maxRuleWords = 15

var (
	errNoObject     = errors.New("no JSON object with a reply")
	errNoAnalysis   = errors.New("reply has no analysis")
	errInvalidScore = errors.New("score is not a number")
)

type rawResult struct {
	Reply    string       `json:"reply"`
	Analysis *rawAnalysis `json:"analysis"`
}

type rawAnalysis struct {
	Corrected string          `json:"corrected"`
	Rule      string          `json:"rule"`
	Score     json.RawMessage `json:"score"`
}

// parseReply finds the first JSON object in content that decodes into a
// complete coach answer. Models wrap JSON in prose or code fences, so every
// '{' is tried as a starting point.
func parseReply(content string) (InteractionResult, error) {
	lastErr := errNoObject
	for i := 0; i < len(content); i++ {
		if content[i] != '{' {
			continue
		}

		var raw rawResult
		dec := json.NewDecoder(strings.NewReader(content[i:]))
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		if strings.TrimSpace(raw.Reply) == "" {
			continue
		}

		res, err := raw.validate()
		if err != nil {
			lastErr = err
			continue
		}
		return res, nil
	}
	return InteractionResult{}, lastErr
}

func (r rawResult) validate() (InteractionResult, error) {
	if r.Analysis == nil {
		return InteractionResult{}, errNoAnalysis
	}

	var score float64
	if len(r.Analysis.Score) == 0 || string(r.Analysis.Score) == "null" {
		return InteractionResult{}, fmt.Errorf("%w: missing", errInvalidScore)
	}
	if err := json.Unmarshal(r.Analysis.Score, &score); err != nil {
		return InteractionResult{}, fmt.Errorf("%w: %s", errInvalidScore, string(r.Analysis.Score))
	}

	return InteractionResult{
		Reply: strings.TrimSpace(r.Reply),
		Analysis: AnalysisResult{
			Corrected: strings.TrimSpace(r.Analysis.Corrected),
			Rule:      limitWords(strings.TrimSpace(r.Analysis.Rule), maxRuleWords),
			Score:     clampScore(score),
		},
	}, nil
}

// clampScore truncates toward zero and bounds the result to 0..100.
func clampScore(f float64) int {
	switch {
	case f <= 0:
		return 0
	case f >= 100:
		return 100
	default:
		return int(f)
	}
}

func limitWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ")
}
