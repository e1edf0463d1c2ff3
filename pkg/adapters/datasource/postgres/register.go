package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/adapters/datasource"
	"github.com/arcwise-inc/arc-engine/pkg/config"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Type:        config.WarehousePostgres,
			DisplayName: "PostgreSQL",
		},
		Factory: func(ctx context.Context, cfg *config.WarehouseConfig, enginePool *pgxpool.Pool, logger *zap.Logger) (datasource.Warehouse, error) {
			return New(ctx, cfg, enginePool, logger)
		},
	})
}
