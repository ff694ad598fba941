// Package config loads process configuration from an optional YAML file and
// COLDCHAIN_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"coldchain/pkg/domain"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"

	CursorMemory = "memory"
	CursorRedis  = "redis"
)

// DevJWTSigningKey is the default signing key. It is public, so only the
// in-memory backend may start with it.
const DevJWTSigningKey = "dev-secret-key-change-in-production"

// Config is the root configuration for the server and the operator CLI.
type Config struct {
	Server   Server         `yaml:"server"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Notifier NotifierConfig `yaml:"notifier"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LedgerConfig holds the process-wide roles. Both identities are fixed at
// startup and never change while the process runs.
type LedgerConfig struct {
	Manufacturer string        `yaml:"manufacturer"`
	Oracle       string        `yaml:"oracle"`
	TxTimeout    time.Duration `yaml:"tx_timeout"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"`
	DatabaseURL string `yaml:"database_url"`
}

// RedisConfig is optional; an empty URL disables the Redis sink and cursor.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Channel      string        `yaml:"channel"`
	CursorKey    string        `yaml:"cursor_key"`
}

// KafkaConfig is optional; no brokers disables the Kafka sink and sensor feed.
type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers"`
	ClientID        string        `yaml:"client_id"`
	EventsTopic     string        `yaml:"events_topic"`
	SensorTopic     string        `yaml:"sensor_topic"`
	ConsumerGroup   string        `yaml:"consumer_group"`
	Partitions      int32         `yaml:"partitions"`
	Replication     int16         `yaml:"replication"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

type NotifierConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	BatchSize        int           `yaml:"batch_size"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	Cursor           string        `yaml:"cursor"`
}

type AuthConfig struct {
	JWTSigningKey string        `yaml:"jwt_signing_key"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration that runs fully in memory.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Ledger: LedgerConfig{
			TxTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{Backend: BackendMemory},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			Channel:      "coldchain:events",
			CursorKey:    "coldchain:dispatcher:cursor",
		},
		Kafka: KafkaConfig{
			ClientID:        "coldchain",
			EventsTopic:     "coldchain.ledger.events",
			SensorTopic:     "coldchain.sensor.readings",
			ConsumerGroup:   "coldchain-sensor-feed",
			Partitions:      3,
			Replication:     1,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Notifier: NotifierConfig{
			PollInterval:     time.Second,
			BatchSize:        256,
			SubscriberBuffer: 64,
			Cursor:           CursorMemory,
		},
		Auth: AuthConfig{
			JWTSigningKey: DevJWTSigningKey,
			Issuer:        "coldchain",
			Audience:      "coldchain-api",
			TokenTTL:      time.Hour,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s=%q", key, v))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s=%q", key, v))
				return
			}
			*dst = n
		}
	}

	str("COLDCHAIN_ADDR", &c.Server.Addr)
	dur("COLDCHAIN_REQUEST_TIMEOUT", &c.Server.RequestTimeout)
	str("COLDCHAIN_MANUFACTURER", &c.Ledger.Manufacturer)
	str("COLDCHAIN_ORACLE", &c.Ledger.Oracle)
	dur("COLDCHAIN_TX_TIMEOUT", &c.Ledger.TxTimeout)
	str("COLDCHAIN_STORAGE_BACKEND", &c.Storage.Backend)
	str("COLDCHAIN_DATABASE_URL", &c.Storage.DatabaseURL)
	str("COLDCHAIN_REDIS_URL", &c.Redis.URL)
	if v, ok := lookup("COLDCHAIN_KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	str("COLDCHAIN_KAFKA_EVENTS_TOPIC", &c.Kafka.EventsTopic)
	str("COLDCHAIN_KAFKA_SENSOR_TOPIC", &c.Kafka.SensorTopic)
	str("COLDCHAIN_KAFKA_CONSUMER_GROUP", &c.Kafka.ConsumerGroup)
	dur("COLDCHAIN_NOTIFIER_POLL_INTERVAL", &c.Notifier.PollInterval)
	num("COLDCHAIN_NOTIFIER_BATCH_SIZE", &c.Notifier.BatchSize)
	str("COLDCHAIN_DISPATCH_CURSOR", &c.Notifier.Cursor)
	str("COLDCHAIN_JWT_SIGNING_KEY", &c.Auth.JWTSigningKey)
	str("COLDCHAIN_JWT_ISSUER", &c.Auth.Issuer)
	str("COLDCHAIN_JWT_AUDIENCE", &c.Auth.Audience)
	str("COLDCHAIN_LOG_LEVEL", &c.Log.Level)
	str("COLDCHAIN_LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if _, err := domain.ParseIdentity(c.Ledger.Manufacturer); err != nil {
		errs = append(errs, fmt.Errorf("ledger.manufacturer: %w", err))
	}
	if _, err := domain.ParseIdentity(c.Ledger.Oracle); err != nil {
		errs = append(errs, fmt.Errorf("ledger.oracle: %w", err))
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of memory, postgres", c.Storage.Backend))
	}
	switch c.Notifier.Cursor {
	case CursorMemory:
	case CursorRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis dispatch cursor"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifier.cursor %q is not one of memory, redis", c.Notifier.Cursor))
	}
	if c.Notifier.PollInterval <= 0 {
		errs = append(errs, errors.New("notifier.poll_interval must be positive"))
	}
	if c.Notifier.BatchSize <= 0 {
		errs = append(errs, errors.New("notifier.batch_size must be positive"))
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("auth.jwt_signing_key is required"))
	}
	if c.Storage.Backend == BackendPostgres && c.UsesDevSigningKey() {
		errs = append(errs, errors.New("auth.jwt_signing_key must be set for the postgres backend; the development key is public"))
	}
	return errors.Join(errs...)
}

// UsesDevSigningKey reports whether tokens are signed with the public
// development key, which lets anyone mint manufacturer or oracle tokens.
func (c Config) UsesDevSigningKey() bool {
	return c.Auth.JWTSigningKey == DevJWTSigningKey
}

// Manufacturer returns the validated manufacturer identity.
func (c Config) Manufacturer() domain.Identity {
	id, _ := domain.ParseIdentity(c.Ledger.Manufacturer)
	return id
}

// Oracle returns the validated oracle identity.
func (c Config) Oracle() domain.Identity {
	id, _ := domain.ParseIdentity(c.Ledger.Oracle)
	return id
}

// KafkaEnabled reports whether any broker is configured.
func (c Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }
