package mssql

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
			Type:        config.WarehouseMSSQL,
			DisplayName: "Microsoft SQL Server",
		},
		Factory: func(ctx context.Context, cfg *config.WarehouseConfig, _ *pgxpool.Pool, logger *zap.Logger) (datasource.Warehouse, error) {
			return New(ctx, cfg, logger)
		},
	})
}
