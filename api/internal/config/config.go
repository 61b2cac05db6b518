package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-visible setting named in the spec (§6).
type Config struct {
	Port string

	TelegramBotToken string
	WebhookURL       string

	DatabaseURL string
	RedisURL    string

	GeminiAPIKey string
	GeminiModel  string

	AnalysisAPIURL     string
	AnalysisAPITimeout time.Duration

	S3Bucket    string
	S3Region    string
	S3Endpoint  string // non-empty for S3-compatible stores (MinIO etc.)

	RateLimitCapacity int
	RateLimitWindow   time.Duration

	UploadVelocityCapacity int
	UploadVelocityWindow   time.Duration

	DailyFreeQuota int

	JobTimeout    time.Duration
	WorkerCount   int

	MaxUploadBytes   int64
	DuplicateWindow  time.Duration

	QueueDepthLimit int
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvSeconds(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func getEnvInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// Load reads configuration from the environment. Required keys missing at
// startup cause a fatal exit, same as the teacher's config.Load().
func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		TelegramBotToken: mustEnv("TELEGRAM_BOT_TOKEN"),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		DatabaseURL: mustEnv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		GeminiAPIKey: mustEnv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		AnalysisAPIURL:     mustEnv("ANALYSIS_API_URL"),
		AnalysisAPITimeout: getEnvSeconds("ANALYSIS_API_TIMEOUT_SECONDS", 30*time.Second),

		S3Bucket:   mustEnv("S3_BUCKET"),
		S3Region:   getEnv("S3_REGION", "us-east-1"),
		S3Endpoint: getEnv("S3_ENDPOINT", ""),

		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 5),
		RateLimitWindow:   getEnvSeconds("RATE_LIMIT_WINDOW_SECONDS", 60*time.Second),

		UploadVelocityCapacity: getEnvInt("UPLOAD_VELOCITY_CAPACITY", 10),
		UploadVelocityWindow:   getEnvSeconds("UPLOAD_VELOCITY_WINDOW_SECONDS", 3600*time.Second),

		DailyFreeQuota: getEnvInt("DAILY_FREE_QUOTA", 3),

		JobTimeout:  getEnvSeconds("JOB_TIMEOUT_SECONDS", 300*time.Second),
		WorkerCount: getEnvInt("WORKER_COUNT", 3),

		MaxUploadBytes:  getEnvInt64("MAX_UPLOAD_BYTES", 20*1024*1024),
		DuplicateWindow: getEnvSeconds("DUPLICATE_WINDOW_SECONDS", 24*time.Hour),

		QueueDepthLimit: getEnvInt("QUEUE_DEPTH_LIMIT", 500),
	}
}
