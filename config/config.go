package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	pkgconfig "taskagent/pkg/config"
)

// Config 应用配置，由 base.yaml、<env>.yaml、secrets.env 和环境变量合并而来
type Config struct {
	DB     pkgconfig.DBConfig     `yaml:"db"`
	MQ     pkgconfig.MQConfig     `yaml:"mq"`
	Redis  pkgconfig.RedisConfig  `yaml:"redis"`
	JWT    pkgconfig.JWTConfig    `yaml:"jwt"`
	Server pkgconfig.ServerConfig `yaml:"server"`
	Agent  pkgconfig.AgentConfig  `yaml:"agent"`
	Otel   pkgconfig.OtelConfig   `yaml:"otel"`
	Outbox pkgconfig.OutboxConfig `yaml:"outbox"`

	Retention pkgconfig.RetentionConfig `yaml:"retention"`
}

// Load reads configuration for the environment named by CONFIG_ENV from the
// directory named by CONFIG_DIR (default "config").
func Load() (*Config, error) {
	return LoadFrom(pkgconfig.GetConfigEnv(), pkgconfig.GetEnv("CONFIG_DIR", "config"))
}

// LoadFrom reads configuration for env from dir.
func LoadFrom(env, dir string) (*Config, error) {
	merged, err := pkgconfig.LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := pkgconfig.Decode(merged, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（生产环境使用）
	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideJWTFromEnv(&cfg.JWT)
	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	pkgconfig.OverrideAgentFromEnv(&cfg.Agent)
	pkgconfig.OverrideOtelFromEnv(&cfg.Otel)
	pkgconfig.OverrideRetentionFromEnv(&cfg.Retention)

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.JWT.TTL == 0 {
		cfg.JWT.TTL = 24 * time.Hour
	}
	if cfg.Agent.ConfirmationTTL == 0 {
		cfg.Agent.ConfirmationTTL = 5 * time.Minute
	}
	if cfg.Agent.DisplayTimezone == "" {
		cfg.Agent.DisplayTimezone = "Asia/Karachi"
	}
	if cfg.Otel.ServiceName == "" {
		cfg.Otel.ServiceName = "taskagent"
	}
	if cfg.Outbox.Interval == 0 {
		cfg.Outbox.Interval = time.Second
	}
	if cfg.Outbox.BatchSize == 0 {
		cfg.Outbox.BatchSize = 100
	}
	if cfg.Outbox.MaxRetries == 0 {
		cfg.Outbox.MaxRetries = 5
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "0 3 * * *"
	}
}

// Validate reports configuration that would make the services misbehave.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if _, err := time.LoadLocation(c.Agent.DisplayTimezone); err != nil {
		return fmt.Errorf("agent.display_timezone: %w", err)
	}
	return nil
}
