package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
)

// ListSchemas returns user schemas, excluding PostgreSQL system schemas.
func (a *Adapter) ListSchemas(ctx context.Context) ([]string, error) {
	const query = `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY schema_name
	`

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query schemas: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema: %w", err)
		}
		schemas = append(schemas, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schemas: %w", err)
	}

	return schemas, nil
}

// ListTables returns base tables in a schema with estimated row counts.
// The estimate comes from pg_class.reltuples; table pages refresh it on
// ANALYZE, which is close enough for dashboard listings. Exact counts come
// from CountRows.
func (a *Adapter) ListTables(ctx context.Context, schema string) ([]warehouse.TableInfo, error) {
	const query = `
		SELECT
			t.table_schema,
			t.table_name,
			COALESCE(c.reltuples::bigint, 0) as row_count
		FROM information_schema.tables t
		LEFT JOIN pg_class c ON c.relname = t.table_name
		LEFT JOIN pg_namespace n ON n.oid = c.relnamespace AND n.nspname = t.table_schema
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema = $1
		ORDER BY t.table_name
	`

	rows, err := a.pool.Query(ctx, query, schema)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []warehouse.TableInfo
	for rows.Next() {
		var t warehouse.TableInfo
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		// reltuples reports -1 for never-analyzed tables
		if t.RowCount < 0 {
			t.RowCount = 0
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// DescribeTable returns column metadata ordered by ordinal position.
// Character length and numeric precision are carried for batch sizing.
func (a *Adapter) DescribeTable(ctx context.Context, schema, table string) ([]warehouse.ColumnInfo, error) {
	const query = `
		SELECT
			column_name,
			data_type,
			character_maximum_length,
			numeric_precision,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := a.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []warehouse.ColumnInfo
	for rows.Next() {
		var c warehouse.ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.MaxLength, &c.Precision, &c.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.DataType = strings.ToUpper(c.DataType)
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s.%s not found", schema, table)
	}

	return columns, nil
}

// CountRows returns the exact row count of a table.
func (a *Adapter) CountRows(ctx context.Context, schema, table string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", qualifiedTableName(schema, table))

	var count int64
	if err := a.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s.%s: %w", schema, table, err)
	}
	return count, nil
}
