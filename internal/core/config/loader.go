package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/zkrelay/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst == 0 {
		c.Server.RateBurst = max(int(c.Server.RateLimit), 1)
	}

	if c.Chain.Transport == "" {
		c.Chain.Transport = TransportWS
	}
	if c.Chain.DialTimeout == 0 {
		c.Chain.DialTimeout = 10 * time.Second
	}

	if len(c.Networks) == 0 {
		c.Networks = []domain.Network{domain.NetworkTestnet}
	}

	if c.Queue.MaxConcurrent == 0 {
		c.Queue.MaxConcurrent = 1
	}
	if c.Queue.RetryAttempts == nil {
		one := 1
		c.Queue.RetryAttempts = &one
	}
	if c.Queue.RetryDelay == 0 {
		c.Queue.RetryDelay = time.Second
	}
	if c.Queue.ItemTimeout == 0 {
		c.Queue.ItemTimeout = 5 * time.Minute
	}

	if c.Connection.BaseDelay == 0 {
		c.Connection.BaseDelay = time.Second
	}
	if c.Connection.MaxDelay == 0 {
		c.Connection.MaxDelay = 30 * time.Second
	}
	if c.Connection.MaxAttempts == 0 {
		c.Connection.MaxAttempts = 10
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks value ranges.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must be >= 0"))
	}

	switch c.Chain.Transport {
	case TransportWS, TransportGRPC:
	default:
		errs = append(errs, fmt.Errorf("chain.transport %q must be ws or grpc", c.Chain.Transport))
	}
	if c.Chain.URL == "" {
		errs = append(errs, errors.New("chain.url is required"))
	}

	for _, n := range c.Networks {
		if n == "" {
			errs = append(errs, errors.New("networks must not contain empty tags"))
		}
	}

	if c.Queue.MaxConcurrent < 1 {
		errs = append(errs, errors.New("queue.max_concurrent must be >= 1"))
	}
	if *c.Queue.RetryAttempts < 0 {
		errs = append(errs, errors.New("queue.retry_attempts must be >= 0"))
	}
	if c.Queue.RetryDelay < 0 {
		errs = append(errs, errors.New("queue.retry_delay must be >= 0"))
	}
	if c.Queue.ItemTimeout <= 0 {
		errs = append(errs, errors.New("queue.item_timeout must be > 0"))
	}

	if c.Connection.BaseDelay <= 0 {
		errs = append(errs, errors.New("connection.base_delay must be > 0"))
	}
	if c.Connection.MaxDelay < c.Connection.BaseDelay {
		errs = append(errs, errors.New("connection.max_delay must be >= connection.base_delay"))
	}
	if c.Connection.MaxAttempts < 1 {
		errs = append(errs, errors.New("connection.max_attempts must be >= 1"))
	}

	if c.Database.Retention < 0 {
		errs = append(errs, errors.New("database.retention must be >= 0"))
	}

	return errors.Join(errs...)
}
