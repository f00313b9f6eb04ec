package warehouse

import (
	"context"
	"fmt"
	"sync"
)

// AdapterInfo describes a registered warehouse driver for UI discovery.
type AdapterInfo struct {
	Driver      string `json:"driver"`       // "postgres", "mssql"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
	NativeHTTP  bool   `json:"native_http"` // warehouse has an HTTP SQL function
}

// Registration contains info plus the factory for creating adapters.
// The factory receives a generic config map so the registry stays free of
// per-engine config types. PostgreSQL is always compiled in; other drivers
// register behind build tags (mssql, all_adapters).
type Registration struct {
	Info    AdapterInfo
	Factory func(ctx context.Context, config map[string]any) (Adapter, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Driver] = reg
}

// RegisteredAdapters returns info for all compiled-in drivers.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// GetFactory returns the factory for a driver, or nil if the driver was not
// compiled in.
func GetFactory(driver string) func(ctx context.Context, config map[string]any) (Adapter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[driver]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if a driver is available.
func IsRegistered(driver string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[driver]
	return ok
}

// New creates an adapter for the given driver from the registry.
func New(ctx context.Context, driver string, config map[string]any) (Adapter, error) {
	factory := GetFactory(driver)
	if factory == nil {
		return nil, fmt.Errorf("unsupported warehouse driver: %s (not compiled in)", driver)
	}
	return factory(ctx, config)
}
