package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                     string
	AdminPort                string
	DatabaseURL              string
	RedisAddr                string
	DefaultBranchID          string
	LiveMinSamples           int
	DefaultAvgWaitMin        float64
	StatsWorkerCount         int
	RateLimitPerMinute       int
	RateLimitBurst           int
	BranchRateLimitPerMinute int
	BranchRateLimitBurst     int
	ShutdownTimeout          time.Duration
	OTLPEndpoint             string
	OTLPInsecure             bool
}

func Load() Config {
	// Best effort; a missing .env is the normal case in production.
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	adminPort := os.Getenv("ADMIN_PORT")
	if adminPort == "" {
		adminPort = "8082"
	}

	return Config{
		Port:                     port,
		AdminPort:                adminPort,
		DatabaseURL:              os.Getenv("DB_DSN"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		DefaultBranchID:          os.Getenv("DEFAULT_BRANCH_ID"),
		LiveMinSamples:           readInt("MIN_STATS_SAMPLE", 5),
		DefaultAvgWaitMin:        readFloat("DEFAULT_AVG_WAIT_MIN", 15),
		StatsWorkerCount:         readInt("STATS_WORKER_COUNT", 10),
		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
		BranchRateLimitPerMinute: readInt("BRANCH_RATE_LIMIT_PER_MIN", 600),
		BranchRateLimitBurst:     readInt("BRANCH_RATE_LIMIT_BURST", 120),
		ShutdownTimeout:          readDurationSeconds("SHUTDOWN_TIMEOUT_SECONDS", 10),
		OTLPEndpoint:             os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:             os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
	}
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}
