// Package coach turns a learner's spoken turn into a coached reply and a
// short grammar analysis.
package coach

import (
	"fmt"
	"strings"
)

// Role identifies the speaker of an Utterance.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Utterance is one entry of a conversation history.
type Utterance struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Scenario is the conversational setting the coach role-plays.
type Scenario string

const (
	ScenarioFreeTalk        Scenario = "Free Talk"
	ScenarioJobInterview    Scenario = "Job Interview"
	ScenarioBusinessMeeting Scenario = "Business Meeting"
	ScenarioTravel          Scenario = "Travel"
)

// Level is the learner's self-declared proficiency.
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

func Scenarios() []Scenario {
	return []Scenario{ScenarioFreeTalk, ScenarioJobInterview, ScenarioBusinessMeeting, ScenarioTravel}
}

func Levels() []Level {
	return []Level{LevelBeginner, LevelIntermediate, LevelAdvanced}
}

// ParseScenario accepts display names and their snake/kebab forms,
// case-insensitively. Empty input selects Free Talk.
func ParseScenario(s string) (Scenario, error) {
	if strings.TrimSpace(s) == "" {
		return ScenarioFreeTalk, nil
	}
	key := normalize(s)
	for _, sc := range Scenarios() {
		if normalize(string(sc)) == key {
			return sc, nil
		}
	}
	return "", fmt.Errorf("unknown scenario %q", s)
}

// ParseLevel works like ParseScenario. Empty input selects Intermediate.
func ParseLevel(s string) (Level, error) {
	if strings.TrimSpace(s) == "" {
		return LevelIntermediate, nil
	}
	key := normalize(s)
	for _, l := range Levels() {
		if normalize(string(l)) == key {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown level %q", s)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", " ", "-", " ").Replace(s)
}

// AnalysisResult is the coach's feedback on one learner utterance.
type AnalysisResult struct {
	Corrected string `json:"corrected"`
	Rule      string `json:"rule"`
	Score     int    `json:"score"`
}

// InteractionResult is the coach's full answer to one turn.
type InteractionResult struct {
	Reply    string         `json:"reply"`
	Analysis AnalysisResult `json:"analysis"`
}

// FallbackReply is spoken when the language model cannot be used.
const FallbackReply = "I'm ready when you are! Could you repeat that?"

// FallbackResult is returned by the analyzer whenever the model call or the
// parse of its answer fails.
func FallbackResult() InteractionResult {
	return InteractionResult{
		Reply: FallbackReply,
		Analysis: AnalysisResult{
			Corrected: "N/A",
			Rule:      "Connection error",
			Score:     100,
		},
	}
}
