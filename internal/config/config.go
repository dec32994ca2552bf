package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Auth    AuthConfig
	LLM     LLMConfig
	STT     STTConfig
	TTS     TTSConfig
	Coach   CoachConfig
	Session SessionConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type RedisConfig struct {
	Enabled  bool // false runs without counters mirroring, readiness check or background tasks
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	TokenSecret string // empty: a random per-process secret is generated
	TokenTTL    time.Duration
}

type LLMConfig struct {
	APIKey           string
	BaseURL          string
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
	Temperature      float64
}

type STTConfig struct {
	Backend       string // "openai" or "local"
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	Language      string
	LocalBaseURL  string // default: "http://localhost:8178"
	TempDir       string
}

type TTSConfig struct {
	Backend       string // "openai" or "local"
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	Voice         string
	LocalBinPath  string // default: "piper"
	LocalModel    string // required when backend=local
	CacheDir      string
	CacheMaxBytes int64 // 0 disables the size bound
	PruneInterval time.Duration
}

type CoachConfig struct {
	HistoryWindow int
	CallTimeout   time.Duration
	TipLanguage   string
}

type SessionConfig struct {
	TTL time.Duration
}

type LogConfig struct {
	Level string
}

// Load reads the configuration from the environment. The shared API key is
// looked up under GROQ_API_KEY first and GROQ_KEY second.
func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	redisEnabled, err := getEnvBool("REDIS_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_ENABLED: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	temperature, err := getEnvFloat("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}

	historyWindow, err := getEnvInt("COACH_HISTORY_WINDOW", 8)
	if err != nil {
		return nil, fmt.Errorf("invalid COACH_HISTORY_WINDOW: %w", err)
	}

	callTimeout, err := getEnvDuration("COACH_CALL_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid COACH_CALL_TIMEOUT: %w", err)
	}

	sessionTTL, err := getEnvDuration("SESSION_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	tokenTTL, err := getEnvDuration("SESSION_TOKEN_TTL", 12*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TOKEN_TTL: %w", err)
	}

	cacheMax, err := getEnvInt("TTS_CACHE_MAX_BYTES", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_CACHE_MAX_BYTES: %w", err)
	}

	pruneInterval, err := getEnvDuration("TTS_CACHE_PRUNE_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_CACHE_PRUNE_INTERVAL: %w", err)
	}

	apiKey := getEnv("GROQ_API_KEY", getEnv("GROQ_KEY", ""))
	baseURL := getEnv("LLM_BASE_URL", groqBaseURL)

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
			RateLimitRPS:   rps,
			RateLimitBurst: burst,
		},
		Redis: RedisConfig{
			Enabled:  redisEnabled,
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			TokenSecret: getEnv("SESSION_TOKEN_SECRET", ""),
			TokenTTL:    tokenTTL,
		},
		LLM: LLMConfig{
			APIKey:           apiKey,
			BaseURL:          baseURL,
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "llama-3.3-70b-versatile"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
			Temperature:      temperature,
		},
		STT: STTConfig{
			Backend:       getEnv("STT_BACKEND", "openai"),
			OpenAIKey:     apiKey,
			OpenAIBaseURL: getEnv("STT_OPENAI_BASE_URL", baseURL),
			OpenAIModel:   getEnv("STT_OPENAI_MODEL", "whisper-large-v3"),
			Language:      getEnv("STT_LANGUAGE", "en"),
			LocalBaseURL:  getEnv("STT_LOCAL_BASE_URL", "http://localhost:8178"),
			TempDir:       getEnv("STT_TEMP_DIR", os.TempDir()),
		},
		TTS: TTSConfig{
			Backend:       getEnv("TTS_BACKEND", "openai"),
			OpenAIKey:     apiKey,
			OpenAIBaseURL: getEnv("TTS_OPENAI_BASE_URL", baseURL),
			OpenAIModel:   getEnv("TTS_OPENAI_MODEL", "playai-tts"),
			Voice:         getEnv("TTS_VOICE", "Fritz-PlayAI"),
			LocalBinPath:  getEnv("TTS_LOCAL_PIPER_BIN", "piper"),
			LocalModel:    getEnv("TTS_LOCAL_PIPER_MODEL", ""),
			CacheDir:      getEnv("TTS_CACHE_DIR", "audio_cache"),
			CacheMaxBytes: int64(cacheMax),
			PruneInterval: pruneInterval,
		},
		Coach: CoachConfig{
			HistoryWindow: historyWindow,
			CallTimeout:   callTimeout,
			TipLanguage:   getEnv("COACH_TIP_LANGUAGE", "French"),
		},
		Session: SessionConfig{
			TTL: sessionTTL,
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports every missing or inconsistent setting at once. A missing
// API key is fatal: no backend can run without it.
func (c *Config) Validate() error {
	var problems []string
	if c.LLM.APIKey == "" {
		problems = append(problems, "GROQ_API_KEY (or GROQ_KEY) is required")
	}
	if c.TTS.Backend == "local" && c.TTS.LocalModel == "" {
		problems = append(problems, "TTS_LOCAL_PIPER_MODEL is required when TTS_BACKEND=local")
	}
	if c.TTS.CacheDir == "" {
		problems = append(problems, "TTS_CACHE_DIR cannot be empty")
	}
	if c.Coach.HistoryWindow < 0 {
		problems = append(problems, "COACH_HISTORY_WINDOW must be >= 0")
	}
	if c.TTS.CacheMaxBytes < 0 {
		problems = append(problems, "TTS_CACHE_MAX_BYTES must be >= 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
