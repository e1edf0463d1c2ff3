package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/config"
)

type stubWarehouse struct{}

func (stubWarehouse) Execute(context.Context, string, []any, bool) (*Result, error) {
	return &Result{}, nil
}
func (stubWarehouse) ReplaceTable(context.Context, TableSpec, [][]any) (int64, error) { return 0, nil }
func (stubWarehouse) DropTable(context.Context, string, string) error                { return nil }
func (stubWarehouse) Dialect() arcsql.Dialect                                         { return arcsql.ANSI }
func (stubWarehouse) Namespace() string                                               { return "stub" }
func (stubWarehouse) Ping(context.Context) error                                      { return nil }
func (stubWarehouse) Close() error                                                    { return nil }

func TestRegistry_Open(t *testing.T) {
	Register(Registration{
		Info: AdapterInfo{Type: "stub", DisplayName: "Stub"},
		Factory: func(ctx context.Context, cfg *config.WarehouseConfig, _ *pgxpool.Pool, _ *zap.Logger) (Warehouse, error) {
			return stubWarehouse{}, nil
		},
	})
	Register(Registration{
		Info: AdapterInfo{Type: "broken", DisplayName: "Broken"},
		Factory: func(ctx context.Context, cfg *config.WarehouseConfig, _ *pgxpool.Pool, _ *zap.Logger) (Warehouse, error) {
			return nil, errors.New("cannot connect")
		},
	})

	assert.True(t, IsRegistered("stub"))
	assert.False(t, IsRegistered("oracle"))

	w, err := Open(context.Background(), &config.WarehouseConfig{Type: "stub"}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "stub", w.Namespace())

	_, err = Open(context.Background(), &config.WarehouseConfig{Type: "broken"}, nil, zap.NewNop())
	assert.ErrorContains(t, err, "failed to open Broken warehouse")

	_, err = Open(context.Background(), &config.WarehouseConfig{Type: "oracle"}, nil, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported warehouse type")

	types := make([]string, 0)
	for _, info := range RegisteredAdapters() {
		types = append(types, info.Type)
	}
	assert.Contains(t, types, "stub")
	assert.IsNonDecreasing(t, types)
}

func TestTableSpec_ColumnNames(t *testing.T) {
	spec := TableSpec{Columns: []ColumnSpec{{Name: "a"}, {Name: "b"}}}
	assert.Equal(t, []string{"a", "b"}, spec.ColumnNames())
}
