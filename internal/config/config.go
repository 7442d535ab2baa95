// Package config loads the gate's configuration the way the teacher's
// internal/config does: a layered viper read (file, then environment)
// into a single struct, followed by defaulting and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved, validated configuration for one gate
// process.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Signing      SigningConfig      `mapstructure:"signing"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Idempotency  IdempotencyConfig  `mapstructure:"idempotency"`
	Replay       ReplayConfig       `mapstructure:"replay"`
	OfflineQueue OfflineQueueConfig `mapstructure:"offline_queue"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig mirrors the teacher's LogConfig shape (Output/Rotation
// nested structs) but targets log/slog instead of zap.
type LogConfig struct {
	Level       string           `mapstructure:"level"`
	Format      string           `mapstructure:"format"` // "json" or "console"
	Caller      bool             `mapstructure:"caller"`
	ServiceName string           `mapstructure:"service_name"`
	Environment string           `mapstructure:"environment"`
	Output      LogOutputConfig  `mapstructure:"output"`
	Rotation    LogRotationConfig `mapstructure:"rotation"`
}

type LogOutputConfig struct {
	ToFile   bool   `mapstructure:"to_file"`
	FilePath string `mapstructure:"file_path"`
}

type LogRotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
	LocalTime  bool `mapstructure:"local_time"`
}

// CORSConfig allows either an allow-all or an explicit origin list.
type CORSConfig struct {
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

// SigningConfig carries the HMAC secret used to verify token envelopes.
// See spec.md §4.1.
type SigningConfig struct {
	Secret string `mapstructure:"secret"`
}

// DatabaseConfig describes the durable store connection. DSN mirrors
// the teacher's DatabaseConfig.DSN() helper.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN renders a lib/pq keyword/value connection string for
// database/sql.Open.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// DSNURL renders a postgres:// URL for golang-migrate, which requires
// the URL form rather than lib/pq's keyword/value form.
func (d DatabaseConfig) DSNURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig describes the ephemeral store connection.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Address renders a host:port pair for go-redis.
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RateLimitConfig parameterizes the per-origin token bucket (C2).
type RateLimitConfig struct {
	CapacityTokens   int     `mapstructure:"capacity_tokens"`
	RefillPerSecond  float64 `mapstructure:"refill_per_second"`
	KeyPrefix        string  `mapstructure:"key_prefix"`
}

// IdempotencyConfig parameterizes the memoized-reply store (C3).
type IdempotencyConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// ReplayConfig parameterizes the per-(event,nonce) replay guard (C4).
type ReplayConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// OfflineQueueConfig parameterizes the degraded-mode stream (C6/C8).
type OfflineQueueConfig struct {
	StreamKey           string        `mapstructure:"stream_key"`
	CursorKey           string        `mapstructure:"cursor_key"`
	OfflineFlagKey      string        `mapstructure:"offline_flag_key"`
	DefaultOffline      bool          `mapstructure:"default_offline"`
	LeaderLockKey       string        `mapstructure:"leader_lock_key"`
	LeaderLockTTL       time.Duration `mapstructure:"leader_lock_ttl"`
	BlockReadTimeout    time.Duration `mapstructure:"block_read_timeout"`
	BatchSize           int64         `mapstructure:"batch_size"`
	OfflinePollInterval time.Duration `mapstructure:"offline_poll_interval"`
}

// Load reads config.(yaml|json|toml) from the usual search path plus
// GATE_-prefixed environment variables, defaults unset fields, and
// validates the result. Modeled directly on the teacher's
// internal/config.Load/load/setDefaults chain.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if dir := os.Getenv("GATE_CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ticketing-gate")

	v.SetEnvPrefix("GATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.Signing.Secret = strings.TrimSpace(cfg.Signing.Secret)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.service_name", "ticketing-security-gate")
	v.SetDefault("log.environment", "production")
	v.SetDefault("log.rotation.max_size_mb", 100)
	v.SetDefault("log.rotation.max_backups", 7)
	v.SetDefault("log.rotation.max_age_days", 28)
	v.SetDefault("log.rotation.compress", true)

	v.SetDefault("cors.allow_all_origins", true)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("rate_limit.capacity_tokens", 10)
	v.SetDefault("rate_limit.refill_per_second", 10.0/60.0)
	v.SetDefault("rate_limit.key_prefix", "ratelimit")

	v.SetDefault("idempotency.ttl", 300*time.Second)
	v.SetDefault("idempotency.key_prefix", "idem")

	v.SetDefault("replay.ttl", 12*time.Hour)
	v.SetDefault("replay.key_prefix", "replay")

	v.SetDefault("offline_queue.stream_key", "offline_validations")
	v.SetDefault("offline_queue.cursor_key", "worker:last_id")
	v.SetDefault("offline_queue.offline_flag_key", "cfg:offline_mode")
	v.SetDefault("offline_queue.default_offline", false)
	v.SetDefault("offline_queue.leader_lock_key", "reconciler:leader")
	v.SetDefault("offline_queue.leader_lock_ttl", 30*time.Second)
	v.SetDefault("offline_queue.block_read_timeout", 5*time.Second)
	v.SetDefault("offline_queue.batch_size", 50)
	v.SetDefault("offline_queue.offline_poll_interval", 1*time.Second)
}

// Validate rejects configurations that would compromise the gate's
// security invariants if started.
func (c *Config) Validate() error {
	if c.Signing.Secret == "" {
		return fmt.Errorf("config: signing.secret is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("config: database.name is required")
	}
	if c.RateLimit.CapacityTokens <= 0 {
		return fmt.Errorf("config: rate_limit.capacity_tokens must be positive")
	}
	if c.RateLimit.RefillPerSecond <= 0 {
		return fmt.Errorf("config: rate_limit.refill_per_second must be positive")
	}
	if !c.CORS.AllowAllOrigins && len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("config: cors.allowed_origins required when allow_all_origins is false")
	}
	return nil
}
