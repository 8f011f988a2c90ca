package traffic

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// normalizeValue converts driver types into plain Go values the analyzer
// can render: numerics become float64, integers int64, UUIDs and byte
// strings become strings.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}

		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}

		return f.Float64
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case float32:
		return float64(val)
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	default:
		return v
	}
}
