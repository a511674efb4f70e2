package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr   string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string
	JWTSecret    string

	FiatRateBaseURL   string
	CryptoRateBaseURL string
	RateFetchTimeout  time.Duration
	QuoteCacheTTL     time.Duration

	PushoverToken   string
	PushoverUserKey string
	PushoverTimeout time.Duration

	SweepInterval time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		ListenAddr:   getEnv("LISTEN_ADDR", ":8080"),
		PostgresDSN:  getEnv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=hubp2p sslmode=disable"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers: []string{getEnv("KAFKA_BROKER", "localhost:9092")},
		KafkaTopic:   getEnv("KAFKA_TOPIC", "transaction-events"),
		JWTSecret:    getEnv("JWT_SECRET", "supersecret"),

		FiatRateBaseURL:   getEnv("FIAT_RATE_BASE_URL", ""),
		CryptoRateBaseURL: getEnv("CRYPTO_RATE_BASE_URL", ""),
		RateFetchTimeout:  getEnvDuration("RATE_FETCH_TIMEOUT", 10*time.Second),
		QuoteCacheTTL:     getEnvDuration("QUOTE_CACHE_TTL", 30*time.Second),

		PushoverToken:   getEnv("PUSHOVER_TOKEN", ""),
		PushoverUserKey: getEnv("PUSHOVER_USER_KEY", ""),
		PushoverTimeout: getEnvDuration("PUSHOVER_TIMEOUT", 10*time.Second),

		SweepInterval: getEnvDuration("EXPIRY_SWEEP_INTERVAL", time.Minute),
	}

	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"quote_cache_ttl", cfg.QuoteCacheTTL,
		"sweep_interval", cfg.SweepInterval)
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	slog.Warn("invalid duration value, using default", "key", key, "value", v, "default", def)
	return def
}
