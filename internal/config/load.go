package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional config file and the
// environment, applies defaults, and validates the result. Environment
// variables use the TASKWELL_ prefix with underscores for nesting
// (TASKWELL_WORKER_COUNT) and take precedence over file values.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/taskwell")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No file is fine: env and defaults cover everything.
	}

	v.SetEnvPrefix("TASKWELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.queues", []string{"default"})
	v.SetDefault("worker.poll_interval", time.Second)
	v.SetDefault("worker.stuck_task_age", 30*time.Minute)
	v.SetDefault("worker.stuck_task_check_interval", 5*time.Minute)
	v.SetDefault("worker.shutdown_timeout", 30*time.Second)

	v.SetDefault("idempotency.failure_mode", "fail_open")
	v.SetDefault("idempotency.default_ttl", time.Hour)

	// Empty defaults so AutomaticEnv picks these up when set only in the
	// environment.
	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
}
