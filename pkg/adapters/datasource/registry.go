package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/config"
)

// AdapterInfo describes a registered warehouse adapter.
type AdapterInfo struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
}

// Factory opens a warehouse. enginePool is the engine database pool and may be
// reused by adapters that keep data tables in the engine database.
type Factory func(ctx context.Context, cfg *config.WarehouseConfig, enginePool *pgxpool.Pool, logger *zap.Logger) (Warehouse, error)

// Registration pairs adapter info with its factory.
type Registration struct {
	Info    AdapterInfo
	Factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each adapter's init function.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns the registered adapters sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}

// Open creates the warehouse configured by cfg.Type.
func Open(ctx context.Context, cfg *config.WarehouseConfig, enginePool *pgxpool.Pool, logger *zap.Logger) (Warehouse, error) {
	registryMu.RLock()
	reg, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported warehouse type: %s (not compiled in)", cfg.Type)
	}

	w, err := reg.Factory(ctx, cfg, enginePool, logger.Named("warehouse."+cfg.Type))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s warehouse: %w", reg.Info.DisplayName, err)
	}
	return w, nil
}
