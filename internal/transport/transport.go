package transport

import (
	"context"
	"fmt"
	"strings"

	"dynq/internal/queue"
)

// Executor performs one batch call against a target environment.
type Executor interface {
	Execute(ctx context.Context, ops []queue.Operation) ([]queue.OperationResult, error)
}

// Provider resolves the Executor for an environment name.
type Provider interface {
	Client(ctx context.Context, environment string) (Executor, error)
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, ops []queue.Operation) ([]queue.OperationResult, error)

func (f Func) Execute(ctx context.Context, ops []queue.Operation) ([]queue.OperationResult, error) {
	return f(ctx, ops)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, environment string) (Executor, error)

func (f ProviderFunc) Client(ctx context.Context, environment string) (Executor, error) {
	return f(ctx, environment)
}

// Static returns a Provider that serves exec for every environment.
func Static(exec Executor) Provider {
	return ProviderFunc(func(context.Context, string) (Executor, error) {
		return exec, nil
	})
}

// Map is a Provider backed by a fixed set of executors keyed by
// case-insensitive environment name.
type Map map[string]Executor

func (m Map) Client(_ context.Context, environment string) (Executor, error) {
	for name, exec := range m {
		if strings.EqualFold(name, environment) {
			return exec, nil
		}
	}
	return nil, Wrap(ErrConfiguration, environment, "resolve client", fmt.Sprintf("no environment named %q", environment), nil)
}
