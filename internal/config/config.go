package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Port                     string
	AllowedOrigins           []string
	StorageBackend           string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	RedisKeyPrefix           string
	DashboardCacheTTLSeconds int
	ConfirmSecret            string
	ConfirmTTLSeconds        int
	ResetPIN                 string
	OverpaymentPolicy        string
	BucketRevenueByYear      bool
	ShopTimezone             string
	LogLevel                 string
	LogFormat                string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("DASHBOARD_CACHE_TTL_SECONDS", "30"))
	if err != nil || cacheTTL < 0 {
		cacheTTL = 30
	}
	confirmTTL, err := strconv.Atoi(getEnv("CONFIRM_TTL_SECONDS", "120"))
	if err != nil || confirmTTL < 1 {
		confirmTTL = 120
	}
	byYear, _ := strconv.ParseBool(getEnv("ANALYTICS_BUCKET_BY_YEAR", "false"))

	cfg := Config{
		Port:                     getEnv("PORT", "8080"),
		AllowedOrigins:           splitList(getEnv("ALLOWED_ORIGINS", "http://127.0.0.1:3000")),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  redisDB,
		RedisKeyPrefix:           getEnv("REDIS_KEY_PREFIX", "perfumaria:"),
		DashboardCacheTTLSeconds: cacheTTL,
		ConfirmSecret:            strings.TrimSpace(os.Getenv("CONFIRM_SECRET")),
		ConfirmTTLSeconds:        confirmTTL,
		ResetPIN:                 strings.TrimSpace(os.Getenv("RESET_PIN")),
		OverpaymentPolicy:        strings.TrimSpace(os.Getenv("OVERPAYMENT_POLICY")),
		BucketRevenueByYear:      byYear,
		ShopTimezone:             getEnv("SHOP_TIMEZONE", "America/Sao_Paulo"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		LogFormat:                getEnv("LOG_FORMAT", "console"),
	}

	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE_BACKEND")))
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = BackendMemory
		if cfg.DatabaseURL != "" {
			cfg.StorageBackend = BackendPostgres
		}
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
