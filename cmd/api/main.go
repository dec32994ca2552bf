package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/aminelidof/lidof-english-coach/internal/api"
	"github.com/aminelidof/lidof-english-coach/internal/auth"
	"github.com/aminelidof/lidof-english-coach/internal/cache"
	"github.com/aminelidof/lidof-english-coach/internal/coach"
	"github.com/aminelidof/lidof-english-coach/internal/config"
	"github.com/aminelidof/lidof-english-coach/internal/llm"
	"github.com/aminelidof/lidof-english-coach/internal/metrics"
	"github.com/aminelidof/lidof-english-coach/internal/multimodal/stt"
	"github.com/aminelidof/lidof-english-coach/internal/multimodal/tts"
	"github.com/aminelidof/lidof-english-coach/internal/queue"
	"github.com/aminelidof/lidof-english-coach/internal/session"
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
	level.Set(cfg.Log.SlogLevel())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Redis connection (optional)
	var (
		shared      *cache.Cache
		queueClient *queue.Client
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, fallback counters stay local", "error", err)
		}
		defer rdb.Close()
		shared = cache.NewCache(rdb)

		queueClient = queue.NewClient(cfg.Redis)
		defer queueClient.Close()
	}
	counters := metrics.NewCounters(shared)

	sttProvider, err := stt.NewProvider(cfg.STT, cfg.Coach.CallTimeout)
	if err != nil {
		slog.Error("speech-to-text setup failed", "error", err)
		os.Exit(1)
	}
	transcriber := stt.NewTranscriber(sttProvider, cfg.STT.Language, cfg.STT.TempDir, counters, logger)

	analyzer := coach.NewAnalyzer(llm.NewGateway(cfg.LLM), coach.AnalyzerConfig{
		Model:         cfg.LLM.DefaultModel,
		Temperature:   cfg.LLM.Temperature,
		HistoryWindow: cfg.Coach.HistoryWindow,
		TipLanguage:   cfg.Coach.TipLanguage,
	}, counters, logger)

	ttsProvider, err := tts.NewProvider(cfg.TTS, cfg.Coach.CallTimeout)
	if err != nil {
		slog.Error("text-to-speech setup failed", "error", err)
		os.Exit(1)
	}
	synth := tts.NewCachedSynthesizer(ttsProvider, tts.CacheConfig{
		Dir:          cfg.TTS.CacheDir,
		DefaultVoice: cfg.TTS.Voice,
		MaxBytes:     cfg.TTS.CacheMaxBytes,
		OverBudget: func(size int64) {
			if queueClient == nil {
				return
			}
			enqCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := queueClient.EnqueueCachePrune(enqCtx, queue.CachePrunePayload{}); err != nil {
				slog.Warn("could not enqueue tts cache prune", "size_bytes", size, "error", err)
			}
		},
	}, logger)

	pipeline := coach.NewPipeline(transcriber, analyzer, synth, cfg.Coach.CallTimeout, counters, logger)

	if queueClient != nil {
		if err := queueClient.EnqueueCacheWarm(ctx, queue.CacheWarmPayload{Phrases: []string{coach.FallbackReply}}); err != nil {
			slog.Warn("could not enqueue tts cache warm-up", "error", err)
		}
	}

	store := session.NewStore(cfg.Session.TTL)
	go store.Run(ctx, time.Minute)

	tokens, err := auth.NewTokens(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		slog.Error("session token setup failed", "error", err)
		os.Exit(1)
	}
	if cfg.Auth.TokenSecret == "" {
		slog.Warn("SESSION_TOKEN_SECRET not set, session tokens will not survive a restart")
	}

	router := api.NewRouter(cfg, store, tokens, pipeline, shared, counters)
	defer router.Close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3*cfg.Coach.CallTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server",
			"addr", cfg.Addr(),
			"llm_model", cfg.LLM.DefaultModel,
			"stt", sttProvider.Name(),
			"tts", ttsProvider.Name(),
			"redis", cfg.Redis.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
