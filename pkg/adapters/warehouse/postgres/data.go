package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
)

// ReadChunk returns up to limit rows starting at offset, ordered by the first
// column so successive offsets tile the table without overlap or gaps.
func (a *Adapter) ReadChunk(ctx context.Context, schema, table string, limit, offset int) (*warehouse.RowSet, error) {
	query := fmt.Sprintf(
		"SELECT * FROM %s ORDER BY 1 LIMIT $1 OFFSET $2",
		qualifiedTableName(schema, table),
	)

	rows, err := a.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("read chunk from %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	return collectRowSet(rows)
}

// SampleRows returns up to limit rows with every value rendered as text and
// NULL as the empty string. Profiling payloads are built from this shape.
func (a *Adapter) SampleRows(ctx context.Context, schema, table string, limit int) (*warehouse.RowSet, error) {
	query := fmt.Sprintf(
		"SELECT * FROM %s LIMIT $1",
		qualifiedTableName(schema, table),
	)

	rows, err := a.pool.Query(ctx, query, limit)
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

// collectRowSet drains pgx rows into a RowSet with native driver values.
func collectRowSet(rows pgx.Rows) (*warehouse.RowSet, error) {
	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	rs := &warehouse.RowSet{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
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
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2 AND table_type = 'BASE TABLE'
		)
	`

	var exists bool
	if err := a.pool.QueryRow(ctx, query, schema, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table %s.%s: %w", schema, table, err)
	}
	return exists, nil
}

// CreateTableLike creates an empty destination table with the source table's
// column structure and defaults. Constraints and indexes are not copied;
// masked values need not satisfy source uniqueness.
func (a *Adapter) CreateTableLike(ctx context.Context, destSchema, destTable, srcSchema, srcTable string) error {
	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING DEFAULTS)",
		qualifiedTableName(destSchema, destTable),
		qualifiedTableName(srcSchema, srcTable),
	)

	if _, err := a.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s.%s like %s.%s: %w", destSchema, destTable, srcSchema, srcTable, err)
	}
	return nil
}

// CreateTableAsSelect creates the destination as a wholesale copy of the
// source in a single statement.
func (a *Adapter) CreateTableAsSelect(ctx context.Context, destSchema, destTable, srcSchema, srcTable string) error {
	query := fmt.Sprintf(
		"CREATE TABLE %s AS SELECT * FROM %s",
		qualifiedTableName(destSchema, destTable),
		qualifiedTableName(srcSchema, srcTable),
	)

	if _, err := a.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s.%s as select from %s.%s: %w", destSchema, destTable, srcSchema, srcTable, err)
	}
	return nil
}

// DeleteAllRows empties a table and returns the number of rows removed.
func (a *Adapter) DeleteAllRows(ctx context.Context, schema, table string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s", qualifiedTableName(schema, table))

	tag, err := a.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete rows from %s.%s: %w", schema, table, err)
	}
	return tag.RowsAffected(), nil
}

// AppendRows bulk-inserts the row set with the COPY protocol. COPY encodes
// client-side per destination column type; values must carry Go types the
// column accepts, so callers coerce masked text back to the source value's
// type before appending.
func (a *Adapter) AppendRows(ctx context.Context, schema, table string, rs *warehouse.RowSet) (int64, error) {
	if rs.NumRows() == 0 {
		return 0, nil
	}

	count, err := a.pool.CopyFrom(
		ctx,
		pgx.Identifier{schema, table},
		rs.Columns,
		pgx.CopyFromRows(rs.Rows),
	)
	if err != nil {
		return 0, fmt.Errorf("append %d rows to %s.%s: %w", rs.NumRows(), schema, table, err)
	}
	return count, nil
}

// InsertFromTable copies the source table's rows into the destination without
// moving them through the engine.
func (a *Adapter) InsertFromTable(ctx context.Context, destSchema, destTable, srcSchema, srcTable string) (int64, error) {
	query := fmt.Sprintf(
		"INSERT INTO %s SELECT * FROM %s",
		qualifiedTableName(destSchema, destTable),
		qualifiedTableName(srcSchema, srcTable),
	)

	tag, err := a.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("insert into %s.%s from %s.%s: %w", destSchema, destTable, srcSchema, srcTable, err)
	}
	return tag.RowsAffected(), nil
}

// DropTable removes a table if it exists.
func (a *Adapter) DropTable(ctx context.Context, schema, table string) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", qualifiedTableName(schema, table))

	if _, err := a.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("drop table %s.%s: %w", schema, table, err)
	}
	return nil
}
