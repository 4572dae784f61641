package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "regsync/pkg/platform/strings"
)

// Config captures everything ingestd needs at startup. FromEnv keeps main
// lean; components receive concrete values, never this struct.
type Config struct {
	DatabaseURL string

	// OpsAddr serves /healthz, /readyz, and /metrics.
	OpsAddr string

	// SchemeTablePath optionally overrides the built-in identifier scheme
	// dictionary.
	SchemeTablePath string

	Kafka KafkaConfig
	Redis RedisConfig
}

// KafkaConfig is empty-broker = disabled, matching how the redis client
// treats an empty URL.
type KafkaConfig struct {
	Brokers           []string
	ObservationsTopic string
	AuditTopic        string
	ConsumerGroup     string
}

// Enabled reports whether Kafka wiring should be constructed at all.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		DatabaseURL:     os.Getenv("REGSYNC_DATABASE_URL"),
		OpsAddr:         getenv("REGSYNC_OPS_ADDR", ":9090"),
		SchemeTablePath: os.Getenv("REGSYNC_SCHEME_TABLE"),
		Kafka: KafkaConfig{
			ObservationsTopic: getenv("REGSYNC_KAFKA_OBSERVATIONS_TOPIC", "regsync.observations"),
			AuditTopic:        getenv("REGSYNC_KAFKA_AUDIT_TOPIC", "regsync.conflict-audit"),
			ConsumerGroup:     getenv("REGSYNC_KAFKA_GROUP", "regsync-ingestd"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REGSYNC_REDIS_URL"),
			PoolSize:     getenvInt("REGSYNC_REDIS_POOL_SIZE", 10),
			MinIdleConns: getenvInt("REGSYNC_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
	if brokers := os.Getenv("REGSYNC_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = platformstrings.DedupeAndTrim(strings.Split(brokers, ","))
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
