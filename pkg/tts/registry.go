package tts

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/creastat/voicegen-go/pkg/logger"
)

// Factory constructs a synthesis client from configuration. Provider
// packages register a factory in their init function, the same way
// database drivers do.
type Factory func(ctx context.Context, cfg ClientConfig, log logger.Logger) (Client, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a provider available to New under the given name.
func Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("provider factory cannot be nil")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := factories[name]; exists {
		return fmt.Errorf("provider %s is already registered", name)
	}
	factories[name] = factory
	return nil
}

// New constructs a client for the named provider.
func New(ctx context.Context, name string, cfg ClientConfig, log logger.Logger) (Client, error) {
	registryMu.RLock()
	factory, exists := factories[name]
	registryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("tts provider %s not found (registered: %v)", name, Providers())
	}
	return factory(ctx, cfg, log)
}

// Providers returns the registered provider names in sorted order.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
