package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateEnvironments(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.MaxConcurrent < 1 || c.Queue.MaxConcurrent > maxConcurrentUpperBound {
		return fmt.Errorf("queue.max_concurrent must be between 1 and %d", maxConcurrentUpperBound)
	}
	if c.Queue.BatchSize < 1 || c.Queue.BatchSize > batchSizeUpperBound {
		return fmt.Errorf("queue.batch_size must be between 1 and %d", batchSizeUpperBound)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateEnvironments() error {
	seen := make(map[string]struct{}, len(c.Environments))
	for i, env := range c.Environments {
		if env.Name == "" {
			return fmt.Errorf("environments[%d].name must be set", i)
		}
		key := strings.ToLower(env.Name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("environments[%d]: duplicate environment name %q", i, env.Name)
		}
		seen[key] = struct{}{}
		if env.URL == "" {
			return fmt.Errorf("environments.%s.url must be set", env.Name)
		}
		parsed, err := url.Parse(env.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("environments.%s.url must be an absolute URL", env.Name)
		}
		if env.TimeoutSeconds < 1 || env.TimeoutSeconds > envTimeoutUpperBoundHours*3600 {
			return fmt.Errorf("environments.%s.timeout_seconds must be between 1 and %d", env.Name, envTimeoutUpperBoundHours*3600)
		}
		if env.MaxAttempts < 1 {
			return errors.New("environments." + env.Name + ".max_attempts must be positive")
		}
	}
	return nil
}
