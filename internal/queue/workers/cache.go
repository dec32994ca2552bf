package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/aminelidof/lidof-english-coach/internal/multimodal/tts"
	"github.com/aminelidof/lidof-english-coach/internal/queue"
)

// AudioCache is the part of the speech cache the worker maintains.
type AudioCache interface {
	Prune(maxBytes int64) (tts.PruneResult, error)
	Warm(ctx context.Context, phrases []string) error
	MaxBytes() int64
}

type CacheWorker struct {
	cache AudioCache
}

func NewCacheWorker(cache AudioCache) *CacheWorker {
	return &CacheWorker{cache: cache}
}

// ProcessPrune enforces the cache size budget, oldest entries first.
func (w *CacheWorker) ProcessPrune(ctx context.Context, t *asynq.Task) error {
	var payload queue.CachePrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
		}
	}

	limit := payload.MaxBytes
	if limit <= 0 {
		limit = w.cache.MaxBytes()
	}
	if limit <= 0 {
		slog.Debug("tts cache unbounded, nothing to prune")
		return nil
	}

	res, err := w.cache.Prune(limit)
	if err != nil {
		return fmt.Errorf("prune tts cache: %w", err)
	}
	slog.Info("tts cache prune finished",
		"limit_bytes", limit,
		"removed", res.Removed,
		"remaining_bytes", res.Remaining,
	)
	return nil
}

// ProcessWarm synthesizes phrases into the cache. Phrases already cached
// cost nothing, so retries are cheap.
func (w *CacheWorker) ProcessWarm(ctx context.Context, t *asynq.Task) error {
	var payload queue.CacheWarmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if len(payload.Phrases) == 0 {
		return nil
	}

	slog.Info("warming tts cache", "phrases", len(payload.Phrases))
	if err := w.cache.Warm(ctx, payload.Phrases); err != nil {
		return fmt.Errorf("warm tts cache: %w", err)
	}
	return nil
}

// Register wires the cache handlers into r.
func (w *CacheWorker) Register(r *queue.HandlersRegistry) {
	r.Register(queue.TypeTTSCachePrune, asynq.HandlerFunc(w.ProcessPrune))
	r.Register(queue.TypeTTSCacheWarm, asynq.HandlerFunc(w.ProcessWarm))
}
