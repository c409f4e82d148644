package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the aria assistant core.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	GeminiAPIKey       string
	LiveWSBaseURL      string
	LiveModel          string
	LiveVoice          string
	ResponseModalities []string
	SystemInstruction  string
	ConnectTimeout     time.Duration
	ConnectPoll        time.Duration

	ResponseCacheTTL time.Duration

	AttentionInterval   time.Duration
	AttentionMaxItems   int
	AttentionThreshold  float64
	BoostMissedCall     float64
	BoostPaymentDue     float64
	BoostCalendarRemind float64
	AttentionLookback   time.Duration

	DatabaseURL    string
	EmbedBatchSize int
}

const defaultSystemInstruction = "You are Aria, a warm and efficient personal assistant. " +
	"Keep spoken answers short; expand only when asked."

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "aria"),
		AllowAnyOrigin:    false,
		GeminiAPIKey:      stringsTrimSpace("GEMINI_API_KEY"),
		LiveWSBaseURL:     envOrDefault("LIVE_WS_BASE_URL", "wss://generativelanguage.googleapis.com"),
		LiveModel:         envOrDefault("LIVE_MODEL", "models/gemini-2.0-flash-live-001"),
		LiveVoice:         envOrDefault("LIVE_VOICE", "Aoede"),
		SystemInstruction: envOrDefault("LIVE_SYSTEM_INSTRUCTION", defaultSystemInstruction),
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),

		ShutdownTimeout:  15 * time.Second,
		ConnectTimeout:   3 * time.Second,
		ConnectPoll:      100 * time.Millisecond,
		ResponseCacheTTL: 300 * time.Second,

		AttentionInterval:   60 * time.Second,
		AttentionMaxItems:   5,
		AttentionThreshold:  0.5,
		BoostMissedCall:     0.10,
		BoostPaymentDue:     0.05,
		BoostCalendarRemind: 0.05,
		AttentionLookback:   24 * time.Hour,

		EmbedBatchSize: 8,
	}

	modalities := envOrDefault("LIVE_RESPONSE_MODALITIES", "TEXT,AUDIO")
	for _, m := range strings.Split(modalities, ",") {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" {
			cfg.ResponseModalities = append(cfg.ResponseModalities, m)
		}
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConnectTimeout, err = durationFromEnv("LIVE_CONNECT_TIMEOUT", cfg.ConnectTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConnectPoll, err = durationFromEnv("LIVE_CONNECT_POLL", cfg.ConnectPoll)
	if err != nil {
		return Config{}, err
	}
	cfg.ResponseCacheTTL, err = durationFromEnv("RESPONSE_CACHE_TTL", cfg.ResponseCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.AttentionInterval, err = durationFromEnv("ATTENTION_REFRESH_INTERVAL", cfg.AttentionInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AttentionLookback, err = durationFromEnv("ATTENTION_SIGNAL_LOOKBACK", cfg.AttentionLookback)
	if err != nil {
		return Config{}, err
	}
	cfg.AttentionMaxItems, err = intFromEnv("ATTENTION_MAX_ITEMS", cfg.AttentionMaxItems)
	if err != nil {
		return Config{}, err
	}
	cfg.AttentionThreshold, err = floatFromEnv("ATTENTION_URGENCY_THRESHOLD", cfg.AttentionThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.BoostMissedCall, err = floatFromEnv("ATTENTION_BOOST_MISSED_CALL", cfg.BoostMissedCall)
	if err != nil {
		return Config{}, err
	}
	cfg.BoostPaymentDue, err = floatFromEnv("ATTENTION_BOOST_PAYMENT_DUE", cfg.BoostPaymentDue)
	if err != nil {
		return Config{}, err
	}
	cfg.BoostCalendarRemind, err = floatFromEnv("ATTENTION_BOOST_CALENDAR", cfg.BoostCalendarRemind)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbedBatchSize, err = intFromEnv("EMBED_BATCH_SIZE", cfg.EmbedBatchSize)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.ConnectTimeout < cfg.ConnectPoll {
		return Config{}, fmt.Errorf("LIVE_CONNECT_TIMEOUT must be at least LIVE_CONNECT_POLL")
	}
	if cfg.ResponseCacheTTL <= 0 {
		return Config{}, fmt.Errorf("RESPONSE_CACHE_TTL must be positive")
	}
	if cfg.AttentionInterval < time.Second {
		return Config{}, fmt.Errorf("ATTENTION_REFRESH_INTERVAL must be at least 1s")
	}
	if cfg.AttentionMaxItems <= 0 {
		return Config{}, fmt.Errorf("ATTENTION_MAX_ITEMS must be positive")
	}
	if cfg.AttentionThreshold < 0 || cfg.AttentionThreshold > 1 {
		return Config{}, fmt.Errorf("ATTENTION_URGENCY_THRESHOLD must be within [0,1]")
	}
	if cfg.EmbedBatchSize <= 0 {
		return Config{}, fmt.Errorf("EMBED_BATCH_SIZE must be positive")
	}
	if len(cfg.ResponseModalities) == 0 {
		return Config{}, fmt.Errorf("LIVE_RESPONSE_MODALITIES must name at least one modality")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
