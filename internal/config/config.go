package config

import "time"

// Config holds all worker-framework configuration, grouped by concern.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"      validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Worker      WorkerConfig      `mapstructure:"worker"      validate:"required"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency" validate:"required"`
}

// ServerConfig configures the ops HTTP surface and logging.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig selects the Postgres queue store when URL is set.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,uri"`
}

// RedisConfig selects the Redis backend (queue store and idempotency
// guard) when Addr is set.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"   validate:"gte=0"`
}

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	Count                  int           `mapstructure:"count"                     validate:"required,gt=0"`
	Queues                 []string      `mapstructure:"queues"                    validate:"required,min=1,dive,required"`
	PollInterval           time.Duration `mapstructure:"poll_interval"             validate:"gte=0"`
	StuckTaskAge           time.Duration `mapstructure:"stuck_task_age"            validate:"gte=0"`
	StuckTaskCheckInterval time.Duration `mapstructure:"stuck_task_check_interval" validate:"gte=0"`
	ShutdownTimeout        time.Duration `mapstructure:"shutdown_timeout"          validate:"gte=0"`
}

// IdempotencyConfig tunes the duplicate-suppression guard.
type IdempotencyConfig struct {
	// FailureMode is "fail_open" (proceed when the guard's backing store
	// is down, accepting possible duplicates) or "fail_closed" (treat
	// the attempt as a transient failure).
	FailureMode string `mapstructure:"failure_mode" validate:"required,oneof=fail_open fail_closed"`

	// DefaultTTL is the suppression window handlers get when they do not
	// choose their own.
	DefaultTTL time.Duration `mapstructure:"default_ttl" validate:"gt=0"`
}
