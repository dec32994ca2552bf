package coach

import (
	"errors"
	"testing"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    InteractionResult
	}{
		{
			name:    "bare object",
			content: `{"reply":"Great!","analysis":{"corrected":"I went.","rule":"Past of go is went.","score":80}}`,
			want:    InteractionResult{Reply: "Great!", Analysis: AnalysisResult{Corrected: "I went.", Rule: "Past of go is went.", Score: 80}},
		},
		{
			name: "prose and code fence",
			content: "Sure! Here is my answer:\n```json\n" +
				`{"reply":"Nice!","analysis":{"corrected":"N/A","rule":"Bien.","score":95}}` +
				"\n```\nHope it helps {really}.",
			want: InteractionResult{Reply: "Nice!", Analysis: AnalysisResult{Corrected: "N/A", Rule: "Bien.", Score: 95}},
		},
		{
			name:    "object without reply is skipped",
			content: `{"note":"draft"} then {"reply":"Ok","analysis":{"corrected":"c","rule":"r","score":50}}`,
			want:    InteractionResult{Reply: "Ok", Analysis: AnalysisResult{Corrected: "c", Rule: "r", Score: 50}},
		},
		{
			name:    "fractional score truncated",
			content: `{"reply":"Ok","analysis":{"corrected":"c","rule":"r","score":87.9}}`,
			want:    InteractionResult{Reply: "Ok", Analysis: AnalysisResult{Corrected: "c", Rule: "r", Score: 87}},
		},
		{
			name:    "score above range clamped",
			content: `{"reply":"Ok","analysis":{"corrected":"c","rule":"r","score":140}}`,
			want:    InteractionResult{Reply: "Ok", Analysis: AnalysisResult{Corrected: "c", Rule: "r", Score: 100}},
		},
		{
			name:    "negative score clamped",
			content: `{"reply":"Ok","analysis":{"corrected":"c","rule":"r","score":-3}}`,
			want:    InteractionResult{Reply: "Ok", Analysis: AnalysisResult{Corrected: "c", Rule: "r", Score: 0}},
		},
		{
			name:    "long rule cut to fifteen words",
			content: `{"reply":"Ok","analysis":{"corrected":"c","rule":"one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen","score":10}}`,
			want: InteractionResult{Reply: "Ok", Analysis: AnalysisResult{
				Corrected: "c",
				Rule:      "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen",
				Score:     10,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseReply(tt.content)
			if err != nil {
				t.Fatalf("parseReply: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseReply = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseReply_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"plain prose", "I could not understand the audio.", errNoObject},
		{"truncated json", `{"reply":"Ok","analysis":{"corrected":"c"`, errNoObject},
		{"empty reply", `{"reply":"  ","analysis":{"corrected":"c","rule":"r","score":5}}`, errNoObject},
		{"missing analysis", `{"reply":"Ok"}`, errNoAnalysis},
		{"string score", `{"reply":"Ok","analysis":{"corrected":"c","rule":"r","score":"high"}}`, errInvalidScore},
		{"null score", `{"reply":"Ok","analysis":{"corrected":"c","rule":"r","score":null}}`, errInvalidScore},
		{"missing score", `{"reply":"Ok","analysis":{"corrected":"c","rule":"r"}}`, errInvalidScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseReply(tt.content)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseScenarioAndLevel(t *testing.T) {
	sc, err := ParseScenario("job_interview")
	if err != nil || sc != ScenarioJobInterview {
		t.Errorf("ParseScenario(job_interview) = %q, %v", sc, err)
	}
	if sc, _ := ParseScenario(""); sc != ScenarioFreeTalk {
		t.Errorf("default scenario = %q", sc)
	}
	if _, err := ParseScenario("space walk"); err == nil {
		t.Error("expected error for unknown scenario")
	}

	lv, err := ParseLevel("ADVANCED")
	if err != nil || lv != LevelAdvanced {
		t.Errorf("ParseLevel(ADVANCED) = %q, %v", lv, err)
	}
	if lv, _ := ParseLevel(""); lv != LevelIntermediate {
		t.Errorf("default level = %q", lv)
	}
}
