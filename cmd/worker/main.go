package main

import (
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/aminelidof/lidof-english-coach/internal/config"
	"github.com/aminelidof/lidof-english-coach/internal/multimodal/tts"
	"github.com/aminelidof/lidof-english-coach/internal/queue"
	"github.com/aminelidof/lidof-english-coach/internal/queue/workers"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration rejected", "error", err)
		os.Exit(1)
	}
	if !cfg.Redis.Enabled {
		slog.Error("the worker needs Redis, set REDIS_ENABLED=true")
		os.Exit(1)
	}
	level.Set(cfg.Log.SlogLevel())

	ttsProvider, err := tts.NewProvider(cfg.TTS, cfg.Coach.CallTimeout)
	if err != nil {
		slog.Error("text-to-speech setup failed", "error", err)
		os.Exit(1)
	}
	synth := tts.NewCachedSynthesizer(ttsProvider, tts.CacheConfig{
		Dir:          cfg.TTS.CacheDir,
		DefaultVoice: cfg.TTS.Voice,
		MaxBytes:     cfg.TTS.CacheMaxBytes,
	}, logger)

	const concurrency = 2
	srv := asynq.NewServer(queue.RedisOpt(cfg.Redis), asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 3,
			"low":     1,
		},
		Logger: newAsynqLogger(logger),
	})

	registry := queue.NewHandlersRegistry()
	workers.NewCacheWorker(synth).Register(registry)

	if cfg.TTS.CacheMaxBytes > 0 {
		scheduler, err := queue.NewPruneScheduler(cfg.Redis, cfg.TTS.PruneInterval)
		if err != nil {
			slog.Error("prune scheduler setup failed", "error", err)
			os.Exit(1)
		}
		if err := scheduler.Start(); err != nil {
			slog.Error("prune scheduler failed to start", "error", err)
			os.Exit(1)
		}
		defer scheduler.Shutdown()
		slog.Info("tts cache prune scheduled",
			"every", cfg.TTS.PruneInterval.String(),
			"max_bytes", cfg.TTS.CacheMaxBytes,
		)
	}

	slog.Info("starting worker", "concurrency", concurrency, "tasks", registry.Types())
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
