package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"fabriclens/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// portToNull stores node entities with a NULL port
func portToNull(e domain.EntityKey) sql.NullInt64 {
	if !e.IsPort() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(e.Port), Valid: true}
}

// nullToEntity rebuilds an entity key from its stored columns
func nullToEntity(guid string, port sql.NullInt64) domain.EntityKey {
	if !port.Valid {
		return domain.NodeEntity(guid)
	}
	return domain.PortEntity(guid, int(port.Int64))
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// marshalJSONField marshals v for a JSON column; nil maps and slices become NULL
func marshalJSONField(v any) (sql.NullString, error) {
	switch x := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case domain.Evidence:
		if x == nil {
			return sql.NullString{}, nil
		}
	case []string:
		if x == nil {
			x = []string{}
		}
		v = x
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal JSON field: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(ns.String), target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON field: %w", err)
	}
	return nil
}
