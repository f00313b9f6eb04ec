package warehouse

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// TextValue renders a driver value as the string the profiling payload
// carries. NULL becomes the empty string so every column keeps the same
// number of sample values.
func TextValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case bool:
		return strconv.FormatBool(val)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case *big.Int:
		if val == nil {
			return ""
		}
		return val.String()
	case [16]byte:
		// pgx hands uuid columns back as their raw bytes.
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		if !val.Valid {
			return ""
		}
		if v, err := val.Value(); err == nil {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// TextRow renders every value of a row with TextValue.
func TextRow(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = TextValue(v)
	}
	return out
}
