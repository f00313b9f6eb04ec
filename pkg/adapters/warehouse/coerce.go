package warehouse

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// timestampLayouts are tried in order when a masked value must become a
// time.Time again. JSON round-trips produce RFC 3339; the text renderer and
// some algorithms produce the space-separated form.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// CoerceMerged restores driver value types on the masked cells of merged.
// JSON decoding leaves masked values as string, float64, or bool; writing
// them back through a typed bulk protocol needs the column's Go type, which
// the original chunk still carries cell by cell. Only assigned columns are
// touched. Cells that cannot be coerced pass through unchanged so the write
// fails with the driver's error instead of silently corrupting data.
func CoerceMerged(merged, original *RowSet, assigned map[string]string) {
	if merged.NumRows() == 0 || original.NumRows() != merged.NumRows() {
		return
	}

	for j, col := range merged.Columns {
		if _, ok := assigned[col]; !ok {
			continue
		}
		for i := range merged.Rows {
			merged.Rows[i][j] = CoerceValue(merged.Rows[i][j], original.Rows[i][j])
		}
	}
}

// CoerceValue converts one masked value toward the type of the original
// value it replaces. Unknown combinations return the masked value as-is.
func CoerceValue(masked, original any) any {
	if masked == nil {
		return nil
	}

	switch original.(type) {
	case nil:
		return masked
	case string:
		return TextValue(masked)
	case []byte:
		return []byte(TextValue(masked))
	case int, int8, int16, int32, int64:
		return coerceInt(masked)
	case float32, float64:
		return coerceFloat(masked)
	case bool:
		return coerceBool(masked)
	case time.Time:
		return coerceTime(masked)
	case pgtype.Numeric:
		var n pgtype.Numeric
		if err := n.Scan(TextValue(masked)); err == nil {
			return n
		}
		return masked
	case [16]byte:
		if parsed, err := uuid.Parse(TextValue(masked)); err == nil {
			return [16]byte(parsed)
		}
		return masked
	default:
		return masked
	}
}

func coerceInt(masked any) any {
	switch m := masked.(type) {
	case float64:
		return int64(m)
	case int64:
		return m
	case string:
		s := strings.TrimSpace(m)
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
	}
	return masked
}

func coerceFloat(masked any) any {
	switch m := masked.(type) {
	case float64:
		return m
	case int64:
		return float64(m)
	case string:
		if v, err := strconv.ParseFloat(strings.TrimSpace(m), 64); err == nil {
			return v
		}
	}
	return masked
}

func coerceBool(masked any) any {
	switch m := masked.(type) {
	case bool:
		return m
	case float64:
		return m != 0
	case string:
		if v, err := strconv.ParseBool(strings.TrimSpace(m)); err == nil {
			return v
		}
	}
	return masked
}

func coerceTime(masked any) any {
	s, ok := masked.(string)
	if !ok {
		return masked
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return masked
}
