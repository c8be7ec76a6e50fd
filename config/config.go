package config

import (
	"fmt"
	"strings"
	"time"

	"contracthub/pkg/config"
)

type WorkerConfig struct {
	DedupTTL   time.Duration `yaml:"dedup_ttl"`
	HealthPort string        `yaml:"health_port"`
	// 超过次数后消息进入 <queue>.dlq
	MaxRetries int64 `yaml:"max_retries"`
	// 每个队列并发处理的消息数，1 为串行
	Concurrency int `yaml:"concurrency"`
}

type Config struct {
	DB     config.DBConfig     `yaml:"db"`
	MQ     config.MQConfig     `yaml:"mq"`
	Redis  config.RedisConfig  `yaml:"redis"`
	JWT    config.JWTConfig    `yaml:"jwt"`
	Server config.ServerConfig `yaml:"server"`
	OTel   config.OTelConfig   `yaml:"otel"`
	Outbox config.OutboxConfig `yaml:"outbox"`
	Log    config.LogConfig    `yaml:"log"`
	Worker WorkerConfig        `yaml:"worker"`
}

// Load reads config/base.yaml merged with config/$CONFIG_ENV.yaml, then
// applies environment overrides.
func Load() (*Config, error) {
	return LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
}

func LoadFrom(env, dir string) (*Config, error) {
	cfg, err := config.Load[Config](env, dir)
	if err != nil {
		return nil, err
	}

	// 环境变量覆盖（生产环境使用）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideOTelFromEnv(&cfg.OTel)
	config.OverrideLogFromEnv(&cfg.Log)

	if cfg.JWT.Secret == "" || strings.Contains(cfg.JWT.Secret, "${") {
		return nil, fmt.Errorf("jwt.secret is required")
	}
	if cfg.JWT.TTL <= 0 {
		cfg.JWT.TTL = 24 * time.Hour
	}
	if cfg.Worker.DedupTTL <= 0 {
		cfg.Worker.DedupTTL = 24 * time.Hour
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.MaxRetries <= 0 {
		cfg.Worker.MaxRetries = 5
	}
	if cfg.Outbox.SweepInterval > 0 && cfg.Outbox.SweepLimit <= 0 {
		cfg.Outbox.SweepLimit = 100
	}
	return cfg, nil
}
