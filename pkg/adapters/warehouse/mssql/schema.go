//go:build mssql || all_adapters

package mssql

import (
	"context"
	"fmt"
	"strings"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
)

// ListSchemas returns user schemas, excluding SQL Server system schemas and
// the fixed database roles that show up as schemas.
func (a *Adapter) ListSchemas(ctx context.Context) ([]string, error) {
	const query = `
		SELECT name
		FROM sys.schemas
		WHERE name NOT IN ('sys', 'INFORMATION_SCHEMA', 'guest')
		  AND name NOT LIKE 'db[_]%'
		ORDER BY name
	`

	rows, err := a.db.QueryContext(ctx, query)
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

// ListTables returns base tables in a schema with row counts from partition
// metadata, which is exact for committed data without scanning.
func (a *Adapter) ListTables(ctx context.Context, schema string) ([]warehouse.TableInfo, error) {
	const query = `
		SELECT
			s.name,
			t.name,
			COALESCE(SUM(p.rows), 0) AS row_count
		FROM sys.tables t
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		LEFT JOIN sys.partitions p ON p.object_id = t.object_id AND p.index_id IN (0, 1)
		WHERE s.name = @p1
		GROUP BY s.name, t.name
		ORDER BY t.name
	`

	rows, err := a.db.QueryContext(ctx, query, schema)
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
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// DescribeTable returns column metadata ordered by ordinal position.
// CHARACTER_MAXIMUM_LENGTH is -1 for (max) types; callers treat that as
// unbounded.
func (a *Adapter) DescribeTable(ctx context.Context, schema, table string) ([]warehouse.ColumnInfo, error) {
	const query = `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			CHARACTER_MAXIMUM_LENGTH,
			NUMERIC_PRECISION,
			ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION
	`

	rows, err := a.db.QueryContext(ctx, query, schema, table)
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
	query := fmt.Sprintf("SELECT COUNT_BIG(*) FROM %s", buildFullyQualifiedName(schema, table))

	var count int64
	if err := a.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s.%s: %w", schema, table, err)
	}
	return count, nil
}
