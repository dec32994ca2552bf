// Package metrics counts the silent degradations of the coaching pipeline so
// operators can see backend trouble that end users never do.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aminelidof/lidof-english-coach/internal/cache"
)

// Fallback kinds.
const (
	KindTranscription = "transcription"
	KindAnalysis      = "analysis"
	KindSynthesis     = "synthesis"
)

const keyPrefix = "coach:fallbacks:"

// Recorder receives one call per recovered failure.
type Recorder interface {
	RecordFallback(ctx context.Context, kind string)
}

// Counters keeps process-local totals and, when a Redis cache is attached,
// mirrors every increment there so several API replicas aggregate.
type Counters struct {
	mu     sync.Mutex
	counts map[string]int64
	shared *cache.Cache
}

func NewCounters(shared *cache.Cache) *Counters {
	return &Counters{counts: make(map[string]int64), shared: shared}
}

func (c *Counters) RecordFallback(ctx context.Context, kind string) {
	c.mu.Lock()
	c.counts[kind]++
	c.mu.Unlock()

	if c.shared == nil {
		return
	}
	// The turn's own context may already be spent on a timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if _, err := c.shared.Increment(ctx, keyPrefix+kind); err != nil {
		slog.Debug("fallback counter not mirrored", "kind", kind, "error", err)
	}
}

// Snapshot returns the local totals.
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Shared returns the cluster-wide totals from Redis, or the local snapshot
// when no Redis is attached.
func (c *Counters) Shared(ctx context.Context) (map[string]int64, error) {
	if c.shared == nil {
		return c.Snapshot(), nil
	}
	kinds := []string{KindTranscription, KindAnalysis, KindSynthesis}
	keys := make([]string, len(kinds))
	for i, k := range kinds {
		keys[i] = keyPrefix + k
	}
	raw, err := c.shared.Counters(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(kinds))
	for i, k := range kinds {
		out[k] = raw[keys[i]]
	}
	return out, nil
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordFallback(context.Context, string) {}
