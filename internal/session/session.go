// Package session keeps per-learner conversation state in process memory.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aminelidof/lidof-english-coach/internal/coach"
)

// Session is one learner's conversation. Field access is safe for concurrent
// use; Acquire/Release additionally serialize whole turns.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	turn chan struct{}

	mu         sync.RWMutex
	history    []coach.Utterance
	last       *coach.InteractionResult
	scores     []int
	lastDigest string
	lastSeen   time.Time
}

func newSession(now time.Time) *Session {
	return &Session{
		ID:        uuid.New(),
		CreatedAt: now,
		turn:      make(chan struct{}, 1),
		lastSeen:  now,
	}
}

// Acquire blocks until no other turn is running on this session or ctx ends.
func (s *Session) Acquire(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release ends the turn started by Acquire.
func (s *Session) Release() {
	<-s.turn
}

// TurnInput prepares pipeline input from the current state.
func (s *Session) TurnInput(audio []byte, scenario coach.Scenario, level coach.Level) coach.TurnInput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return coach.TurnInput{
		Audio:           audio,
		History:         append([]coach.Utterance(nil), s.history...),
		Scenario:        scenario,
		Level:           level,
		LastAudioDigest: s.lastDigest,
	}
}

// Apply records the outcome of a turn. Skipped turns only advance the digest.
func (s *Session) Apply(out coach.TurnOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastDigest = out.AudioDigest
	if out.Skipped || out.Result == nil {
		return
	}
	s.history = out.History
	res := *out.Result
	s.last = &res
	s.scores = append(s.scores, res.Analysis.Score)
}

// Clear forgets the conversation, the scores and the last analysis.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.last = nil
	s.scores = nil
	s.lastDigest = ""
}

// Accuracy is the truncated mean of all recorded scores. ok is false before
// the first analysed turn.
func (s *Session) Accuracy() (accuracy int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return meanScore(s.scores)
}

func meanScore(scores []int) (int, bool) {
	if len(scores) == 0 {
		return 0, false
	}
	sum := 0
	for _, sc := range scores {
		sum += sc
	}
	return sum / len(scores), true
}

// Snapshot is a read-only copy of a session's state.
type Snapshot struct {
	ID           uuid.UUID                `json:"session_id"`
	CreatedAt    time.Time                `json:"created_at"`
	History      []coach.Utterance        `json:"history"`
	LastAnalysis *coach.InteractionResult `json:"last_analysis,omitempty"`
	Scores       []int                    `json:"scores"`
	Accuracy     *int                     `json:"accuracy,omitempty"`
	Turns        int                      `json:"turns"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		History:   append([]coach.Utterance{}, s.history...),
		Scores:    append([]int{}, s.scores...),
		Turns:     len(s.scores),
	}
	if s.last != nil {
		last := *s.last
		snap.LastAnalysis = &last
	}
	if acc, ok := meanScore(s.scores); ok {
		snap.Accuracy = &acc
	}
	return snap
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}
