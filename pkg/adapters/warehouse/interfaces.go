// Package warehouse defines the adapter contract between the engine and the
// databases it profiles and masks. Each supported engine registers a factory
// from an init() function; PostgreSQL is always compiled in, the others sit
// behind build tags so binaries only carry the drivers they were built with.
package warehouse

import (
	"context"
)

// TableInfo describes one base table found during exploration.
type TableInfo struct {
	SchemaName string `json:"schema_name"`
	TableName  string `json:"table_name"`
	RowCount   int64  `json:"row_count"` // estimate where the engine keeps one, exact otherwise
}

// ColumnInfo describes one column of a table, with enough type detail for
// batch sizing (character length and numeric precision when declared).
type ColumnInfo struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"` // engine-reported type name, upper-cased
	MaxLength       *int   `json:"max_length,omitempty"`
	Precision       *int   `json:"precision,omitempty"`
	OrdinalPosition int    `json:"ordinal_position"`
}

// RowSet is a positional slice of rows sharing one column list. Values keep
// the driver's native Go types; callers that need strings convert at the edge.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// NumRows returns the number of rows in the set.
func (rs *RowSet) NumRows() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// HTTPResponse is the result of a POST made through the warehouse's own HTTP
// function. Body is raw bytes; callers decode.
type HTTPResponse struct {
	StatusCode int
	Body       []byte
}

// ConnectionTester verifies warehouse connectivity.
type ConnectionTester interface {
	// TestConnection verifies the warehouse is reachable with valid
	// credentials and that the session landed on the configured database.
	TestConnection(ctx context.Context) error

	// Close releases the adapter's resources.
	Close() error
}

// SchemaExplorer enumerates schemas, tables, and column metadata.
type SchemaExplorer interface {
	// ListSchemas returns user schemas, excluding engine-internal ones.
	ListSchemas(ctx context.Context) ([]string, error)

	// ListTables returns base tables in a schema with row counts.
	ListTables(ctx context.Context, schema string) ([]TableInfo, error)

	// DescribeTable returns column metadata ordered by ordinal position.
	DescribeTable(ctx context.Context, schema, table string) ([]ColumnInfo, error)

	// CountRows returns the exact row count of a table.
	CountRows(ctx context.Context, schema, table string) (int64, error)
}

// ChunkReader reads table data in bounded, ordered chunks.
type ChunkReader interface {
	// ReadChunk returns up to limit rows starting at offset. Rows are ordered
	// by the first column so successive offsets tile the table without
	// overlap.
	ReadChunk(ctx context.Context, schema, table string, limit, offset int) (*RowSet, error)

	// SampleRows returns up to limit rows from the start of the table, every
	// value rendered as text with NULL as the empty string. Used to build
	// profiling payloads.
	SampleRows(ctx context.Context, schema, table string, limit int) (*RowSet, error)
}

// TableWriter creates and fills destination tables.
type TableWriter interface {
	// TableExists reports whether a base table exists.
	TableExists(ctx context.Context, schema, table string) (bool, error)

	// CreateTableLike creates an empty destination table with the source
	// table's column structure. No error if the destination already exists.
	CreateTableLike(ctx context.Context, destSchema, destTable, srcSchema, srcTable string) error

	// CreateTableAsSelect creates the destination as a full copy of the
	// source in one statement. Fails if the destination exists.
	CreateTableAsSelect(ctx context.Context, destSchema, destTable, srcSchema, srcTable string) error

	// DeleteAllRows empties a table and returns the number of rows removed.
	DeleteAllRows(ctx context.Context, schema, table string) (int64, error)

	// AppendRows inserts the row set into the table and returns the number
	// of rows written. Column order follows rs.Columns.
	AppendRows(ctx context.Context, schema, table string, rs *RowSet) (int64, error)

	// InsertFromTable copies every row of the source table into the
	// destination inside the warehouse, and returns the number of rows
	// copied. Both tables must already exist with compatible structure.
	InsertFromTable(ctx context.Context, destSchema, destTable, srcSchema, srcTable string) (int64, error)

	// DropTable removes a table. No error if it does not exist.
	DropTable(ctx context.Context, schema, table string) error
}

// HTTPCaller posts over HTTP from inside the warehouse session. Only engines
// with a native HTTP SQL function provide it.
type HTTPCaller interface {
	// Post sends body to url with the given headers and returns the raw
	// response.
	Post(ctx context.Context, url string, headers map[string]string, body []byte) (*HTTPResponse, error)
}

// Adapter is the full capability set the engine needs from a warehouse. One
// adapter owns one connection pool; all capabilities share it.
type Adapter interface {
	ConnectionTester
	SchemaExplorer
	ChunkReader
	TableWriter

	// QuoteIdentifier quotes a SQL identifier in the engine's dialect.
	QuoteIdentifier(name string) string

	// NativeHTTP returns the engine's HTTP caller when the warehouse has an
	// HTTP SQL function, or (nil, false) when it does not.
	NativeHTTP() (HTTPCaller, bool)
}
