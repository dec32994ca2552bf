package queue

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aminelidof/lidof-english-coach/internal/config"
)

// NewPruneScheduler returns a scheduler that enqueues a cache prune every
// interval. It is not started.
func NewPruneScheduler(cfg config.RedisConfig, interval time.Duration) (*asynq.Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("prune interval must be positive, got %s", interval)
	}

	scheduler := asynq.NewScheduler(RedisOpt(cfg), &asynq.SchedulerOpts{
		Location: time.UTC,
	})

	task := asynq.NewTask(TypeTTSCachePrune, []byte(`{}`))
	if _, err := scheduler.Register(PruneSpec(interval), task,
		asynq.Queue(maintenanceQueue),
		asynq.MaxRetry(1),
	); err != nil {
		return nil, fmt.Errorf("register prune schedule: %w", err)
	}
	return scheduler, nil
}

// PruneSpec renders interval in asynq's cron syntax.
func PruneSpec(interval time.Duration) string {
	return "@every " + interval.String()
}
