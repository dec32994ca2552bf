package tts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aminelidof/lidof-english-coach/pkg/contenthash"
)

const tempPrefix = ".tmp-"

// CacheConfig configures a CachedSynthesizer.
type CacheConfig struct {
	Dir          string
	DefaultVoice string
	MaxBytes     int64 // 0 = unbounded

	// OverBudget is called after a miss grows the cache beyond MaxBytes.
	OverBudget func(size int64)
}

// CachedSynthesizer memoizes synthesized speech on the local filesystem,
// keyed by the content hash of the text.
type CachedSynthesizer struct {
	provider TTSProvider
	cfg      CacheConfig
	ext      string
	logger   *slog.Logger
}

func NewCachedSynthesizer(p TTSProvider, cfg CacheConfig, logger *slog.Logger) *CachedSynthesizer {
	if cfg.Dir == "" {
		cfg.Dir = "audio_cache"
	}
	if cfg.DefaultVoice == "" {
		if dv, ok := p.(interface{ DefaultVoice() string }); ok {
			cfg.DefaultVoice = dv.DefaultVoice()
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ext := ".mp3"
	if _, ok := p.(*LocalTTS); ok {
		ext = ".wav"
	}

	return &CachedSynthesizer{provider: p, cfg: cfg, ext: ext, logger: logger}
}

// CacheKey returns the cache key for text spoken in voice. The default voice
// keys on the text alone; other voices are mixed into the hash.
func CacheKey(text, voice, defaultVoice string) string {
	if voice == "" || voice == defaultVoice {
		return contenthash.SumString(text)
	}
	return contenthash.SumString(voice + "\x00" + text)
}

// Path returns the cache file that holds text spoken in voice.
func (c *CachedSynthesizer) Path(text, voice string) string {
	return filepath.Join(c.cfg.Dir, CacheKey(text, voice, c.cfg.DefaultVoice)+c.ext)
}

// Synthesize returns cached audio for text when present. On a miss it calls
// the provider and stores the result. Provider errors are returned as is;
// a failed cache write only logs.
func (c *CachedSynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	path := c.Path(text, voice)

	if audio, err := os.ReadFile(path); err == nil && len(audio) > 0 {
		// Hits count as use so pruning drops the least recently played entries.
		now := time.Now()
		_ = os.Chtimes(path, now, now)
		c.logger.Debug("tts cache hit", "path", path)
		return audio, nil
	}

	req := SynthesisRequest{Input: text}
	if voice != c.cfg.DefaultVoice {
		req.Voice = voice
	}
	res, err := c.provider.Synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("synthesize with %s: %w", c.provider.Name(), err)
	}

	if err := c.store(path, res.Audio); err != nil {
		c.logger.Warn("tts cache write failed", "path", path, "error", err)
		return res.Audio, nil
	}
	c.logger.Debug("tts cache miss stored", "path", path, "bytes", len(res.Audio))

	if c.cfg.MaxBytes > 0 && c.cfg.OverBudget != nil {
		if size, err := c.Size(); err == nil && size > c.cfg.MaxBytes {
			c.cfg.OverBudget(size)
		}
	}
	return res.Audio, nil
}

// store writes audio under path unless an entry already exists.
func (c *CachedSynthesizer) store(path string, audio []byte) error {
	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	f, err := os.CreateTemp(c.cfg.Dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		os.Remove(tmp)
		return nil
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into cache: %w", err)
	}
	return nil
}

// Warm synthesizes each phrase into the cache with the default voice.
func (c *CachedSynthesizer) Warm(ctx context.Context, phrases []string) error {
	var errs []error
	for _, p := range phrases {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := c.Synthesize(ctx, p, ""); err != nil {
			errs = append(errs, fmt.Errorf("warm %q: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
}

func (c *CachedSynthesizer) entries() ([]cacheEntry, error) {
	dirEntries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	out := make([]cacheEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), tempPrefix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, cacheEntry{
			path:    filepath.Join(c.cfg.Dir, de.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return out, nil
}

// Size reports the total bytes held by cache entries.
func (c *CachedSynthesizer) Size() (int64, error) {
	entries, err := c.entries()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.size
	}
	return total, nil
}

// PruneResult summarizes a prune pass.
type PruneResult struct {
	Removed   int   `json:"removed"`
	Freed     int64 `json:"freed"`
	Remaining int64 `json:"remaining"`
}

// Prune deletes the oldest entries until the cache holds at most maxBytes.
// maxBytes <= 0 leaves the cache untouched.
func (c *CachedSynthesizer) Prune(maxBytes int64) (PruneResult, error) {
	entries, err := c.entries()
	if err != nil {
		return PruneResult{}, err
	}

	var total int64
	for _, e := range entries {
		total += e.size
	}
	res := PruneResult{Remaining: total}
	if maxBytes <= 0 || total <= maxBytes {
		return res, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})

	for _, e := range entries {
		if res.Remaining <= maxBytes {
			break
		}
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("tts cache prune: remove failed", "path", e.path, "error", err)
			continue
		}
		res.Removed++
		res.Freed += e.size
		res.Remaining -= e.size
	}

	c.logger.Info("tts cache pruned",
		"removed", res.Removed,
		"freed_bytes", res.Freed,
		"remaining_bytes", res.Remaining,
	)
	return res, nil
}

// MaxBytes returns the configured size budget.
func (c *CachedSynthesizer) MaxBytes() int64 { return c.cfg.MaxBytes }
