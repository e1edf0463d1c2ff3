package repositories

import (
	"encoding/json"
	"fmt"

	"github.com/arcwise-inc/arc-engine/pkg/arcsql"
)

func arcsqlType(dtype string) arcsql.ColumnType {
	return arcsql.ColumnType(dtype)
}

// marshalArcSQL encodes a nullable ArcSQL for a JSONB column.
func marshalArcSQL(q *arcsql.ArcSQL) ([]byte, error) {
	if q == nil {
		return nil, nil
	}
	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arc sql: %w", err)
	}
	return data, nil
}

// unmarshalArcSQL decodes a nullable JSONB column.
func unmarshalArcSQL(data []byte) (*arcsql.ArcSQL, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	q, err := arcsql.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal arc sql: %w", err)
	}
	return q, nil
}
