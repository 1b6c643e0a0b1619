package main

import (
	"fmt"
	"os"
	"time"

	"campusjudge/internal/common/cache"
	"campusjudge/internal/common/db"
	"campusjudge/internal/common/mq"
	"campusjudge/internal/common/storage"
	"campusjudge/internal/competition/service"
	"campusjudge/internal/judge/backend"
	"campusjudge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// JudgeConfig holds backend selection and worker pool settings.
type JudgeConfig struct {
	backend.Config `yaml:",inline"`
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queueSize"`
	EnqueueTimeout time.Duration `yaml:"enqueueTimeout"`
	ProcessTimeout time.Duration `yaml:"processTimeout"`
}

type SubmitConfig struct {
	MaxCodeBytes       int                     `yaml:"maxCodeBytes"`
	SourceBucket       string                  `yaml:"sourceBucket"`
	SourceKeyPrefix    string                  `yaml:"sourceKeyPrefix"`
	StaleAfter         time.Duration           `yaml:"staleAfter"`
	RecoverInterval    time.Duration           `yaml:"recoverInterval"`
	ProblemCacheTTL    time.Duration           `yaml:"problemCacheTTL"`
	ProblemEmptyTTL    time.Duration           `yaml:"problemEmptyTTL"`
	SubmissionCacheTTL time.Duration           `yaml:"submissionCacheTTL"`
	LeaderboardTTL     time.Duration           `yaml:"leaderboardTTL"`
	RateLimit          service.RateLimitConfig `yaml:"rateLimit"`
	Timeouts           service.TimeoutConfig   `yaml:"timeouts"`
}

type TopicConfig struct {
	VerdictFinal string `yaml:"verdictFinal"`
}

// AppConfig holds judge-service configuration.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Database db.MySQLConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	Kafka    mq.KafkaConfig      `yaml:"kafka"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Judge    JudgeConfig         `yaml:"judge"`
	Submit   SubmitConfig        `yaml:"submit"`
	Topics   TopicConfig         `yaml:"topics"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Judge.Workers == 0 {
		cfg.Judge.Workers = 4
	}
	if cfg.Judge.QueueSize == 0 {
		cfg.Judge.QueueSize = 256
	}
	if cfg.Judge.EnqueueTimeout == 0 {
		cfg.Judge.EnqueueTimeout = 2 * time.Second
	}
	if cfg.Judge.ProcessTimeout == 0 {
		cfg.Judge.ProcessTimeout = 5 * time.Minute
	}
	if cfg.Judge.ProbeTimeout == 0 {
		cfg.Judge.ProbeTimeout = 3 * time.Second
	}

	if cfg.Submit.MaxCodeBytes == 0 {
		cfg.Submit.MaxCodeBytes = 64 * 1024
	}
	if cfg.Submit.SourceBucket == "" {
		cfg.Submit.SourceBucket = "competition-sources"
	}
	if cfg.Submit.StaleAfter == 0 {
		cfg.Submit.StaleAfter = 10 * time.Minute
	}
	if cfg.Submit.StaleAfter <= cfg.Judge.ProcessTimeout {
		return fmt.Errorf("submit.staleAfter %s must exceed judge.processTimeout %s", cfg.Submit.StaleAfter, cfg.Judge.ProcessTimeout)
	}
	if cfg.Submit.RecoverInterval == 0 {
		cfg.Submit.RecoverInterval = time.Minute
	}
	if cfg.Submit.ProblemCacheTTL == 0 {
		cfg.Submit.ProblemCacheTTL = 10 * time.Minute
	}
	if cfg.Submit.ProblemEmptyTTL == 0 {
		cfg.Submit.ProblemEmptyTTL = time.Minute
	}
	if cfg.Submit.SubmissionCacheTTL == 0 {
		cfg.Submit.SubmissionCacheTTL = 30 * time.Minute
	}
	if cfg.Submit.LeaderboardTTL == 0 {
		cfg.Submit.LeaderboardTTL = 72 * time.Hour
	}
	if cfg.Submit.RateLimit.Window == 0 {
		cfg.Submit.RateLimit.Window = time.Minute
	}
	if cfg.Submit.RateLimit.UserMax == 0 {
		cfg.Submit.RateLimit.UserMax = 20
	}
	if cfg.Submit.RateLimit.IPMax == 0 {
		cfg.Submit.RateLimit.IPMax = 120
	}
	if cfg.Submit.Timeouts.DB == 0 {
		cfg.Submit.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Cache == 0 {
		cfg.Submit.Timeouts.Cache = time.Second
	}
	if cfg.Submit.Timeouts.Storage == 0 {
		cfg.Submit.Timeouts.Storage = 5 * time.Second
	}
	if cfg.Submit.Timeouts.MQ == 0 {
		cfg.Submit.Timeouts.MQ = 3 * time.Second
	}

	if cfg.Topics.VerdictFinal == "" {
		cfg.Topics.VerdictFinal = "competition.verdict.final"
	}
	return nil
}
