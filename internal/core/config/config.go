package config

import (
	"time"

	"github.com/vietddude/zkrelay/internal/core/domain"
	redisclient "github.com/vietddude/zkrelay/internal/infra/redis"
	"github.com/vietddude/zkrelay/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Chain      ChainConfig        `yaml:"chain"`
	Networks   []domain.Network   `yaml:"networks"`
	Queue      QueueConfig        `yaml:"queue"`
	Connection ConnectionConfig   `yaml:"connection"`
	VK         VKConfig           `yaml:"verification_key"`
	Redis      redisclient.Config `yaml:"redis"`
	Database   postgres.Config    `yaml:"database"`
	Logging    LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port      int     `yaml:"port"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second on /verify, 0 = unlimited
	RateBurst int     `yaml:"rate_burst"`
}

// Transport selects how the chain session is opened.
type Transport string

const (
	TransportWS   Transport = "ws"
	TransportGRPC Transport = "grpc"
)

// ChainConfig holds settings for the remote verification chain.
type ChainConfig struct {
	Transport     Transport     `yaml:"transport"`
	URL           string        `yaml:"url"`
	SubmitMethod  string        `yaml:"submit_method"`
	HealthMethod  string        `yaml:"health_method"`  // ws only
	HealthService string        `yaml:"health_service"` // grpc only
	ExplorerURL   string        `yaml:"explorer_url"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
}

// QueueConfig holds submission queue settings.
type QueueConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	RetryAttempts *int          `yaml:"retry_attempts"` // nil = default, 0 disables retries
	RetryDelay    time.Duration `yaml:"retry_delay"`
	ItemTimeout   time.Duration `yaml:"item_timeout"`
}

// ConnectionConfig holds reconnection backoff settings.
type ConnectionConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// VKConfig points at the verification key attached to every submission.
type VKConfig struct {
	Hash string `yaml:"hash"`
	File string `yaml:"file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
