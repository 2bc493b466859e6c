package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"dynq/internal/config"
)

// ConfigProvider resolves HTTP clients from the configured environments and
// reuses one client per environment.
type ConfigProvider struct {
	cfg    *config.Config
	logger *slog.Logger
	opts   []HTTPOption

	mu      sync.Mutex
	clients map[string]*HTTPClient
}

// NewProvider builds a provider over cfg.Environments.
func NewProvider(cfg *config.Config, logger *slog.Logger, opts ...HTTPOption) *ConfigProvider {
	return &ConfigProvider{
		cfg:     cfg,
		logger:  logger,
		opts:    opts,
		clients: make(map[string]*HTTPClient),
	}
}

// Client returns the executor for environment.
func (p *ConfigProvider) Client(_ context.Context, environment string) (Executor, error) {
	if p == nil || p.cfg == nil {
		return nil, Wrap(ErrConfiguration, environment, "resolve client", "no configuration loaded", nil)
	}
	env, ok := p.cfg.Environment(environment)
	if !ok {
		return nil, Wrap(ErrConfiguration, environment, "resolve client",
			fmt.Sprintf("no [[environments]] entry named %q", environment), nil)
	}

	key := strings.ToLower(env.Name)
	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[key]; ok {
		return client, nil
	}
	client := NewHTTPClient(env, p.logger, p.opts...)
	p.clients[key] = client
	return client, nil
}
