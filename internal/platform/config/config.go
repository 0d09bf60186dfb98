package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr               string
	StoreBackend       string
	DatabaseURL        string
	WorkflowDefinition string
	LogLevel           string
	TxTimeout          time.Duration
	Redis              RedisConfig
	Audit              AuditConfig
}

// RedisConfig configures the go-redis client used by the redis case store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuditConfig configures the outbox relay. Brokers empty disables it.
type AuditConfig struct {
	KafkaBrokers  []string
	Topic         string
	RelayInterval time.Duration
	RelayBatch    int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:               envOr("TRANSFERDESK_ADDR", ":8080"),
		StoreBackend:       strings.ToLower(envOr("STORE_BACKEND", BackendMemory)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		WorkflowDefinition: os.Getenv("WORKFLOW_DEFINITION"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Audit: AuditConfig{
			Topic: envOr("AUDIT_TOPIC", "transferdesk.audit"),
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Audit.KafkaBrokers = append(cfg.Audit.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.TxTimeout, err = envDuration("TX_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.PoolSize, err = envInt("REDIS_POOL_SIZE", 10); err != nil {
		return Server{}, err
	}
	if cfg.Redis.MinIdleConns, err = envInt("REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return Server{}, err
	}
	if cfg.Redis.DialTimeout, err = envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.ReadTimeout, err = envDuration("REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.WriteTimeout, err = envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Audit.RelayInterval, err = envDuration("AUDIT_RELAY_INTERVAL", time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Audit.RelayBatch, err = envInt("AUDIT_RELAY_BATCH", 100); err != nil {
		return Server{}, err
	}

	return cfg, cfg.Validate()
}

// Validate checks that the selected backend has what it needs.
func (c Server) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if len(c.Audit.KafkaBrokers) > 0 && c.StoreBackend != BackendPostgres {
		return fmt.Errorf("KAFKA_BROKERS requires the postgres backend; the outbox lives there")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
