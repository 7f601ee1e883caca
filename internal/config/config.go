package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig aggregates runtime configuration, injected through environment
// variables so nothing is hardcoded at call sites.
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	RedisAddr string
	RedisDB   int

	// Kafka brokers (comma separated) and topic for the auction event stream.
	KafkaBrokers []string
	KafkaTopic   string

	// TriggerInterval drives the in-process cron loop that sweeps auction
	// ends, captures pending invoices and dispatches notifications.
	TriggerInterval time.Duration

	// Settlement and dispatch batching.
	CaptureBatchSize  int
	DispatchBatchSize int
	DispatchDelay     time.Duration
	MaxSendAttempts   int

	// Finalizer single-flight lock TTL.
	FinalizeLockTTL time.Duration
}

// Load reads and validates configuration, falling back to defaults.
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DBPath:            getEnv("DB_PATH", "auction_engine.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           0,
		KafkaBrokers:      splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "auction-events"),
		TriggerInterval:   time.Minute,
		CaptureBatchSize:  50,
		DispatchBatchSize: 25,
		DispatchDelay:     200 * time.Millisecond,
		MaxSendAttempts:   5,
		FinalizeLockTTL:   2 * time.Minute,
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	triggerSec, err := getEnvInt("TRIGGER_INTERVAL_SEC", int(cfg.TriggerInterval.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid TRIGGER_INTERVAL_SEC: %w", err)
	}
	if triggerSec <= 0 {
		return AppConfig{}, fmt.Errorf("TRIGGER_INTERVAL_SEC must be > 0")
	}
	cfg.TriggerInterval = time.Duration(triggerSec) * time.Second

	captureBatch, err := getEnvInt("CAPTURE_BATCH_SIZE", cfg.CaptureBatchSize)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CAPTURE_BATCH_SIZE: %w", err)
	}
	if captureBatch <= 0 {
		return AppConfig{}, fmt.Errorf("CAPTURE_BATCH_SIZE must be > 0")
	}
	cfg.CaptureBatchSize = captureBatch

	dispatchBatch, err := getEnvInt("DISPATCH_BATCH_SIZE", cfg.DispatchBatchSize)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid DISPATCH_BATCH_SIZE: %w", err)
	}
	if dispatchBatch <= 0 {
		return AppConfig{}, fmt.Errorf("DISPATCH_BATCH_SIZE must be > 0")
	}
	cfg.DispatchBatchSize = dispatchBatch

	delayMs, err := getEnvInt("DISPATCH_DELAY_MS", int(cfg.DispatchDelay.Milliseconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid DISPATCH_DELAY_MS: %w", err)
	}
	if delayMs < 0 {
		return AppConfig{}, fmt.Errorf("DISPATCH_DELAY_MS must be >= 0")
	}
	cfg.DispatchDelay = time.Duration(delayMs) * time.Millisecond

	maxAttempts, err := getEnvInt("MAX_SEND_ATTEMPTS", cfg.MaxSendAttempts)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid MAX_SEND_ATTEMPTS: %w", err)
	}
	if maxAttempts <= 0 {
		return AppConfig{}, fmt.Errorf("MAX_SEND_ATTEMPTS must be > 0")
	}
	cfg.MaxSendAttempts = maxAttempts

	lockTTLSec, err := getEnvInt("FINALIZE_LOCK_TTL_SEC", int(cfg.FinalizeLockTTL.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid FINALIZE_LOCK_TTL_SEC: %w", err)
	}
	if lockTTLSec <= 0 {
		return AppConfig{}, fmt.Errorf("FINALIZE_LOCK_TTL_SEC must be > 0")
	}
	cfg.FinalizeLockTTL = time.Duration(lockTTLSec) * time.Second

	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}

	return cfg, nil
}

// getEnv reads a string environment variable, returning fallback when unset.
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt reads an integer environment variable, returning fallback when unset.
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV parses a comma separated string into a slice.
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
