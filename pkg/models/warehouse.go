package models

import (
	"encoding/json"
	"fmt"

	"github.com/veildata/veil-engine/pkg/jsonutil"
)

// TableRef identifies a warehouse table.
type TableRef struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`
}

// String returns the schema-qualified name used in logs and run ids.
func (t TableRef) String() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Table)
}

// ColumnMetadata describes a warehouse column as reported by the adapter.
type ColumnMetadata struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	MaxLength       *int   `json:"max_length,omitempty"`
	OrdinalPosition int    `json:"ordinal_position"`
}

// ColumnSample is a column's metadata plus the sampled values sent to the
// profiling endpoint. Values are stringified; an empty slice means the
// table had no rows.
type ColumnSample struct {
	ColumnMetadata
	Values []string `json:"values"`
}

// TableSample is the result of sampling one table.
type TableSample struct {
	Table    TableRef       `json:"table"`
	RowCount int64          `json:"row_count"`
	Columns  []ColumnSample `json:"columns"`
}

// ProfiledColumn is the classification the profiling endpoint returned for
// one column.
type ProfiledColumn struct {
	ColumnName string  `json:"columnName"`
	Domain     string  `json:"domain"`
	Algorithm  string  `json:"algorithm"`
	Confidence float64 `json:"confidence"`
}

// UnmarshalJSON decodes a detection leniently. The profiling API's field
// types have drifted between releases (quoted confidences, numeric-looking
// names), and a whole discovery run should not fail over one of them.
func (p *ProfiledColumn) UnmarshalJSON(data []byte) error {
	var raw struct {
		ColumnName json.RawMessage `json:"columnName"`
		Domain     json.RawMessage `json:"domain"`
		Algorithm  json.RawMessage `json:"algorithm"`
		Confidence json.RawMessage `json:"confidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.ColumnName = jsonutil.FlexibleStringValue(raw.ColumnName)
	p.Domain = jsonutil.FlexibleStringValue(raw.Domain)
	p.Algorithm = jsonutil.FlexibleStringValue(raw.Algorithm)
	p.Confidence = jsonutil.FlexibleFloatValue(raw.Confidence)
	return nil
}
