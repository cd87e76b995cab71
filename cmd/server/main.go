package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"perfumaria/backend/internal/cache"
	"perfumaria/backend/internal/config"
	"perfumaria/backend/internal/httpapi"
	"perfumaria/backend/internal/ledger"
	"perfumaria/backend/internal/logging"
	"perfumaria/backend/internal/service"
	"perfumaria/backend/internal/store"
	"perfumaria/backend/internal/store/memory"
	pgstore "perfumaria/backend/internal/store/postgres"
	"perfumaria/backend/internal/store/rediskv"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn().Err(envErr).Msg(".env could not be read")
	}

	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	policy, _ := ledger.ParseOverpaymentPolicy(cfg.OverpaymentPolicy)
	shopLocation, _ := time.LoadLocation(cfg.ShopTimezone)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var kv store.KV
	closers := make([]func() error, 0, 3)

	switch cfg.StorageBackend {
	case config.BackendPostgres:
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("postgres migrations failed")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		kv = pg
		closers = append(closers, pg.Close)
	case config.BackendRedis:
		rs := rediskv.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix)
		if err := rs.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("redis storage unavailable")
		}
		kv = rs
		closers = append(closers, rs.Close)
	default:
		kv = memory.New()
	}
	log.Info().Str("backend", cfg.StorageBackend).Msg("storage ready")

	dashboardCache := cache.DashboardCache(cache.NoopDashboardCache{})
	if cfg.RedisAddr != "" && cfg.DashboardCacheTTLSeconds > 0 {
		redisCache := cache.NewRedisDashboardCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using noop dashboard cache")
		} else {
			dashboardCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Msg("dashboard cache: redis")
		}
	}

	svc, err := service.New(ctx, kv, service.Options{
		OverpaymentPolicy: policy,
		BucketByYear:      cfg.BucketRevenueByYear,
		Cache:             dashboardCache,
		CacheTTL:          time.Duration(cfg.DashboardCacheTTLSeconds) * time.Second,
		Location:          shopLocation,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("could not load stored collections")
	}
	confirm, err := httpapi.NewConfirmer(cfg.ConfirmSecret, time.Duration(cfg.ConfirmTTLSeconds)*time.Second, cfg.ResetPIN)
	if err != nil {
		log.Fatal().Err(err).Msg("could not prepare confirmation tokens")
	}

	gin.SetMode(gin.ReleaseMode)
	api := httpapi.New(svc, confirm, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("perfumaria backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

func validateConfig(cfg config.Config) error {
	if len(cfg.ConfirmSecret) < 32 {
		return fmt.Errorf("CONFIRM_SECRET must be set and at least 32 characters")
	}
	if cfg.ResetPIN != "" {
		if len(cfg.ResetPIN) < 6 || strings.Trim(cfg.ResetPIN, "0123456789") != "" {
			return fmt.Errorf("RESET_PIN must be at least 6 digits")
		}
		if err := validatePINStrength(cfg.ResetPIN); err != nil {
			return fmt.Errorf("RESET_PIN is too weak: %w", err)
		}
	}
	if _, err := ledger.ParseOverpaymentPolicy(cfg.OverpaymentPolicy); err != nil {
		return fmt.Errorf("OVERPAYMENT_POLICY: %w", err)
	}
	if _, err := time.LoadLocation(cfg.ShopTimezone); err != nil {
		return fmt.Errorf("SHOP_TIMEZONE: %w", err)
	}

	switch cfg.StorageBackend {
	case config.BackendMemory:
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("STORAGE_BACKEND=postgres needs DATABASE_URL")
		}
	case config.BackendRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("STORAGE_BACKEND=redis needs REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	for _, origin := range cfg.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("ALLOWED_ORIGINS entry %q must start with http:// or https://", origin)
		}
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "121212": true,
		"112233": true, "123123": true, "102030": true, "147258": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
