//go:build mssql || all_adapters

package mssql

import (
	"context"
	"database/sql"
	"fmt"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
)

// ReadChunk returns up to limit rows starting at offset. SQL Server requires
// ORDER BY for OFFSET/FETCH; ordering by the first column makes successive
// offsets tile the table deterministically.
func (a *Adapter) ReadChunk(ctx context.Context, schema, table string, limit, offset int) (*warehouse.RowSet, error) {
	query := fmt.Sprintf(
		"SELECT * FROM %s ORDER BY 1 OFFSET @p1 ROWS FETCH NEXT @p2 ROWS ONLY",
		buildFullyQualifiedName(schema, table),
	)

	rows, err := a.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("read chunk from %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	return collectRowSet(rows)
}

// SampleRows returns up to limit rows with every value rendered as text and
// NULL as the empty string.
func (a *Adapter) SampleRows(ctx context.Context, schema, table string, limit int) (*warehouse.RowSet, error) {
	query := fmt.Sprintf(
		"SELECT TOP (@p1) * FROM %s",
		buildFullyQualifiedName(schema, table),
	)

	rows, err := a.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sample rows from %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	rs, err := collectRowSet(rows)
	if err != nil {
		return nil, err
	}

	for i, row := range rs.Rows {
		text := warehouse.TextRow(row)
		converted := make([]any, len(text))
		for j, v := range text {
			converted[j] = v
		}
		rs.Rows[i] = converted
	}
	return rs, nil
}

// collectRowSet drains sql rows into a RowSet with native driver values.
func collectRowSet(rows *sql.Rows) (*warehouse.RowSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read column names: %w", err)
	}

	rs := &warehouse.RowSet{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		rs.Rows = append(rs.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return rs, nil
}

// TableExists reports whether a base table exists.
func (a *Adapter) TableExists(ctx context.Context, schema, table string) (bool, error) {
	const query = `
		SELECT COUNT(*)
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 AND TABLE_TYPE = 'BASE TABLE'
	`

	var count int
	if err := a.db.QueryRowContext(ctx, query, schema, table).Scan(&count); err != nil {
		return false, fmt.Errorf("check table %s.%s: %w", schema, table, err)
	}
	return count > 0, nil
}

// CreateTableLike creates an empty destination table with the source table's
// column structure via SELECT INTO with an impossible predicate. The
// OBJECT_ID guard makes it a no-op when the destination already exists.
func (a *Adapter) CreateTableLike(ctx context.Context, destSchema, destTable, srcSchema, srcTable string) error {
	dest := buildFullyQualifiedName(destSchema, destTable)
	query := fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL SELECT * INTO %s FROM %s WHERE 1 = 0",
		escapeStringLiteral(dest),
		dest,
		buildFullyQualifiedName(srcSchema, srcTable),
	)

	if _, err := a.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s.%s like %s.%s: %w", destSchema, destTable, srcSchema, srcTable, err)
	}
	return nil
}

// CreateTableAsSelect creates the destination as a wholesale copy of the
// source in a single statement.
func (a *Adapter) CreateTableAsSelect(ctx context.Context, destSchema, destTable, srcSchema, srcTable string) error {
	query := fmt.Sprintf(
		"SELECT * INTO %s FROM %s",
		buildFullyQualifiedName(destSchema, destTable),
		buildFullyQualifiedName(srcSchema, srcTable),
	)

	if _, err := a.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s.%s as select from %s.%s: %w", destSchema, destTable, srcSchema, srcTable, err)
	}
	return nil
}

// DeleteAllRows empties a table and returns the number of rows removed.
func (a *Adapter) DeleteAllRows(ctx context.Context, schema, table string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s", buildFullyQualifiedName(schema, table))

	result, err := a.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete rows from %s.%s: %w", schema, table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// AppendRows bulk-inserts the row set with the driver's bulk copy protocol
// inside one transaction, so a failed batch leaves nothing behind.
func (a *Adapter) AppendRows(ctx context.Context, schema, table string, rs *warehouse.RowSet) (int64, error) {
	if rs.NumRows() == 0 {
		return 0, nil
	}

	txn, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk insert: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, mssqldb.CopyIn(
		fmt.Sprintf("%s.%s", schema, table),
		mssqldb.BulkOptions{},
		rs.Columns...,
	))
	if err != nil {
		txn.Rollback()
		return 0, fmt.Errorf("prepare bulk insert into %s.%s: %w", schema, table, err)
	}

	for _, row := range rs.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			txn.Rollback()
			return 0, fmt.Errorf("buffer bulk row for %s.%s: %w", schema, table, err)
		}
	}

	// Final Exec with no args flushes the bulk operation
	result, err := stmt.ExecContext(ctx)
	if err != nil {
		stmt.Close()
		txn.Rollback()
		return 0, fmt.Errorf("flush bulk insert into %s.%s: %w", schema, table, err)
	}

	if err := stmt.Close(); err != nil {
		txn.Rollback()
		return 0, fmt.Errorf("close bulk statement: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk insert: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return int64(rs.NumRows()), nil
	}
	return affected, nil
}

// InsertFromTable copies the source table's rows into the destination without
// moving them through the engine.
func (a *Adapter) InsertFromTable(ctx context.Context, destSchema, destTable, srcSchema, srcTable string) (int64, error) {
	query := fmt.Sprintf(
		"INSERT INTO %s SELECT * FROM %s",
		buildFullyQualifiedName(destSchema, destTable),
		buildFullyQualifiedName(srcSchema, srcTable),
	)

	result, err := a.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("insert into %s.%s from %s.%s: %w", destSchema, destTable, srcSchema, srcTable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// DropTable removes a table if it exists.
func (a *Adapter) DropTable(ctx context.Context, schema, table string) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", buildFullyQualifiedName(schema, table))

	if _, err := a.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("drop table %s.%s: %w", schema, table, err)
	}
	return nil
}
