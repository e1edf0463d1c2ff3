package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
	"github.com/arcwise-inc/arc-engine/pkg/metrics"
	"github.com/arcwise-inc/arc-engine/pkg/models"
	"github.com/arcwise-inc/arc-engine/pkg/repositories"
)

// TableSchema is a data table together with the ArcSQL schema derived from it.
type TableSchema struct {
	Meta   *models.DataTableMeta
	Schema *arcsql.Schema
}

// SchemaProvider resolves the schema ArcSQL is validated and translated against.
type SchemaProvider interface {
	// TableSchema returns the data table and its schema. Unknown tables return apperrors.ErrNotFound.
	TableSchema(ctx context.Context, userID string, dataTableID uuid.UUID) (*TableSchema, error)
	// Invalidate drops the cached schema after the table's columns change.
	Invalidate(dataTableID uuid.UUID)
	// Close stops the cache's expiry loop.
	Close()
}

type schemaProvider struct {
	dataTableRepo repositories.DataTableRepository
	namespace     string
	cache         *ttlcache.Cache[string, *TableSchema]
	logger        *zap.Logger
}

// NewSchemaProvider creates a SchemaProvider that caches derived schemas for ttl.
// namespace is the warehouse schema holding the physical tables.
func NewSchemaProvider(
	dataTableRepo repositories.DataTableRepository,
	namespace string,
	ttl time.Duration,
	logger *zap.Logger,
) SchemaProvider {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *TableSchema](ttl),
		ttlcache.WithDisableTouchOnHit[string, *TableSchema](),
	)
	go cache.Start()

	return &schemaProvider{
		dataTableRepo: dataTableRepo,
		namespace:     namespace,
		cache:         cache,
		logger:        logger.Named("schema-provider"),
	}
}

var _ SchemaProvider = (*schemaProvider)(nil)

func (p *schemaProvider) TableSchema(ctx context.Context, userID string, dataTableID uuid.UUID) (*TableSchema, error) {
	key := dataTableID.String()
	if item := p.cache.Get(key); item != nil {
		// Owner check keeps one user's cached table invisible to another.
		if ts := item.Value(); ts.Meta.UserID == userID {
			metrics.SchemaCacheTotal.WithLabelValues("hit").Inc()
			return ts, nil
		}
	}
	metrics.SchemaCacheTotal.WithLabelValues("miss").Inc()

	meta, err := p.dataTableRepo.GetByID(ctx, userID, dataTableID)
	if err != nil {
		return nil, err
	}

	ts := &TableSchema{Meta: meta, Schema: meta.Schema(p.namespace)}
	p.cache.Set(key, ts, ttlcache.DefaultTTL)

	p.logger.Debug("Derived table schema",
		zap.String("data_table_id", key),
		zap.Int("columns", len(ts.Schema.Columns)))
	return ts, nil
}

func (p *schemaProvider) Invalidate(dataTableID uuid.UUID) {
	p.cache.Delete(dataTableID.String())
}

func (p *schemaProvider) Close() {
	p.cache.Stop()
}
