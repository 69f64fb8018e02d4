package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all environment-driven settings. Every policy knob of the
// vote core (retention, cache TTL, window widths, rate limits, CAPTCHA
// difficulty) is exposed here so deployments can tune them without code
// changes.
type Config struct {
	Port        string
	RedisURL    string
	DatabaseURL string // optional; enables the Postgres vote-event archive
	LogLevel    string
	Environment string
	CORSOrigins string

	// Leaderboard cache
	CacheTTL  time.Duration
	Retention time.Duration
	BoardSize int

	// Sliding window widths
	RealtimeWindow time.Duration
	DailyWindow    time.Duration
	WeeklyWindow   time.Duration
	MonthlyWindow  time.Duration

	// Rate limits (fixed window)
	VoteRateMax    int
	VoteRateWindow time.Duration
	ReadRateMax    int
	ReadRateWindow time.Duration

	// Proof-of-work CAPTCHA
	CaptchaMaxNumber int64
	CaptchaHMACKey   string

	// Drift reconciliation
	ReconcileInterval time.Duration
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENVIRONMENT", "development"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),

		CacheTTL:  getEnvDuration("CACHE_TTL_SECONDS", 300*time.Second),
		Retention: getEnvDuration("RETENTION_HOURS", 30*24*time.Hour),
		BoardSize: getEnvInt("BOARD_SIZE", 50),

		RealtimeWindow: getEnvDuration("REALTIME_WINDOW_HOURS", 12*time.Hour),
		DailyWindow:    getEnvDuration("DAILY_WINDOW_HOURS", 24*time.Hour),
		WeeklyWindow:   getEnvDuration("WEEKLY_WINDOW_HOURS", 7*24*time.Hour),
		MonthlyWindow:  getEnvDuration("MONTHLY_WINDOW_HOURS", 30*24*time.Hour),

		VoteRateMax:    getEnvInt("VOTE_RATE_MAX", 10),
		VoteRateWindow: getEnvDuration("VOTE_RATE_WINDOW_SECONDS", 60*time.Second),
		ReadRateMax:    getEnvInt("READ_RATE_MAX", 60),
		ReadRateWindow: getEnvDuration("READ_RATE_WINDOW_SECONDS", 60*time.Second),

		CaptchaMaxNumber: int64(getEnvInt("CAPTCHA_MAX_NUMBER", 100000)),
		CaptchaHMACKey:   getEnv("CAPTCHA_HMAC_KEY", "dev-insecure-key"),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL_SECONDS", 10*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration reads an integer env var whose unit is encoded in the key
// suffix (_SECONDS or _HOURS) and returns it as a duration.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	if len(key) > 6 && key[len(key)-6:] == "_HOURS" {
		return time.Duration(n) * time.Hour
	}
	return time.Duration(n) * time.Second
}
