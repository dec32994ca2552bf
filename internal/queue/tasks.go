package queue

const (
	TypeTTSCachePrune = "tts:cache:prune"
	TypeTTSCacheWarm  = "tts:cache:warm"
)

// Maintenance tasks never compete with anything user-facing.
const maintenanceQueue = "low"

// CachePrunePayload asks the worker to shrink the audio cache to MaxBytes.
// Zero uses the worker's configured budget.
type CachePrunePayload struct {
	MaxBytes int64 `json:"max_bytes,omitempty"`
}

// CacheWarmPayload lists phrases to synthesize ahead of time.
type CacheWarmPayload struct {
	Phrases []string `json:"phrases"`
}
