//go:build integration

package postgres

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	"github.com/veildata/veil-engine/pkg/testhelpers"
)

// openTestAdapter connects an adapter to the shared scratch warehouse and
// returns it with the raw pool for fixture setup.
func openTestAdapter(t *testing.T) (*Adapter, *pgxpool.Pool) {
	t.Helper()

	wh := testhelpers.GetWarehouseDB(t)

	u, err := url.Parse(wh.ConnStr)
	if err != nil {
		t.Fatalf("failed to parse warehouse conn string: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("failed to parse warehouse port: %v", err)
	}
	password, _ := u.User.Password()

	cfg := &Config{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		Database: strings.TrimPrefix(u.Path, "/"),
		SSLMode:  "disable",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	adapter, err := NewAdapter(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	t.Cleanup(func() { adapter.Close() })

	return adapter, wh.Pool
}

func mustExec(t *testing.T, pool *pgxpool.Pool, sql string) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), sql); err != nil {
		t.Fatalf("fixture exec failed: %v\n%s", err, sql)
	}
}

func dropTable(t *testing.T, pool *pgxpool.Pool, name string) {
	t.Helper()
	mustExec(t, pool, "DROP TABLE IF EXISTS "+name)
}

func TestAdapter_Integration(t *testing.T) {
	adapter, _ := openTestAdapter(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := adapter.TestConnection(ctx); err != nil {
		t.Fatalf("connection test failed: %v", err)
	}
}

func TestAdapter_SchemaExploration(t *testing.T) {
	adapter, pool := openTestAdapter(t)
	ctx := context.Background()

	dropTable(t, pool, "wh_people")
	mustExec(t, pool, `
		CREATE TABLE wh_people (
			id BIGINT PRIMARY KEY,
			full_name VARCHAR(40) NOT NULL,
			email TEXT,
			score NUMERIC(8,2),
			active BOOLEAN,
			created_at TIMESTAMP
		)
	`)
	mustExec(t, pool, `
		INSERT INTO wh_people VALUES
			(1, 'Ada Lovelace', 'ada@example.com', 91.25, true, '2024-01-15 09:30:00'),
			(2, 'Grace Hopper', NULL, 88.00, true, '2024-02-20 10:00:00'),
			(3, 'Alan Turing', 'alan@example.com', 95.50, false, '2024-03-01 11:15:00')
	`)
	t.Cleanup(func() { dropTable(t, pool, "wh_people") })

	schemas, err := adapter.ListSchemas(ctx)
	if err != nil {
		t.Fatalf("ListSchemas failed: %v", err)
	}
	foundPublic := false
	for _, s := range schemas {
		if s == "public" {
			foundPublic = true
		}
		if s == "pg_catalog" || s == "information_schema" {
			t.Errorf("system schema %q should be excluded", s)
		}
	}
	if !foundPublic {
		t.Fatalf("expected public schema in %v", schemas)
	}

	tables, err := adapter.ListTables(ctx, "public")
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	foundTable := false
	for _, tbl := range tables {
		if tbl.TableName == "wh_people" {
			foundTable = true
			if tbl.SchemaName != "public" {
				t.Errorf("expected schema public, got %q", tbl.SchemaName)
			}
			if tbl.RowCount < 0 {
				t.Errorf("row count estimate should never be negative, got %d", tbl.RowCount)
			}
		}
	}
	if !foundTable {
		t.Fatal("expected wh_people in table list")
	}

	columns, err := adapter.DescribeTable(ctx, "public", "wh_people")
	if err != nil {
		t.Fatalf("DescribeTable failed: %v", err)
	}
	if len(columns) != 6 {
		t.Fatalf("expected 6 columns, got %d", len(columns))
	}
	for i, col := range columns {
		if col.OrdinalPosition != i+1 {
			t.Errorf("column %s ordinal = %d, want %d", col.Name, col.OrdinalPosition, i+1)
		}
	}

	byName := make(map[string]warehouse.ColumnInfo)
	for _, col := range columns {
		byName[col.Name] = col
	}
	if c := byName["full_name"]; c.MaxLength == nil || *c.MaxLength != 40 {
		t.Errorf("expected full_name max length 40, got %v", c.MaxLength)
	}
	if c := byName["email"]; c.MaxLength != nil {
		t.Errorf("expected no max length for unbounded text, got %v", *c.MaxLength)
	}
	if c := byName["score"]; c.Precision == nil || *c.Precision != 8 {
		t.Errorf("expected score precision 8, got %v", c.Precision)
	}
	if c := byName["full_name"]; !strings.Contains(c.DataType, "VARYING") && c.DataType != "VARCHAR" {
		t.Errorf("expected a varchar type name, got %q", c.DataType)
	}

	count, err := adapter.CountRows(ctx, "public", "wh_people")
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 rows, got %d", count)
	}

	if _, err := adapter.DescribeTable(ctx, "public", "wh_missing"); err == nil {
		t.Error("expected error describing a missing table")
	}
}

func TestAdapter_ReadChunk(t *testing.T) {
	adapter, pool := openTestAdapter(t)
	ctx := context.Background()

	dropTable(t, pool, "wh_chunk")
	mustExec(t, pool, `CREATE TABLE wh_chunk (id BIGINT PRIMARY KEY, label TEXT)`)
	mustExec(t, pool, `
		INSERT INTO wh_chunk
		SELECT n, 'row-' || n FROM generate_series(1, 25) AS n
	`)
	t.Cleanup(func() { dropTable(t, pool, "wh_chunk") })

	var lastID int64
	total := 0
	for _, expect := range []struct{ offset, want int }{
		{0, 10}, {10, 10}, {20, 5}, {30, 0},
	} {
		rs, err := adapter.ReadChunk(ctx, "public", "wh_chunk", 10, expect.offset)
		if err != nil {
			t.Fatalf("ReadChunk offset %d failed: %v", expect.offset, err)
		}
		if rs.NumRows() != expect.want {
			t.Fatalf("offset %d: expected %d rows, got %d", expect.offset, expect.want, rs.NumRows())
		}
		if len(rs.Columns) != 2 || rs.Columns[0] != "id" || rs.Columns[1] != "label" {
			t.Fatalf("unexpected columns %v", rs.Columns)
		}
		for _, row := range rs.Rows {
			id, ok := row[0].(int64)
			if !ok {
				t.Fatalf("expected int64 id, got %T", row[0])
			}
			if id <= lastID {
				t.Fatalf("chunks must tile in order: id %d after %d", id, lastID)
			}
			lastID = id
			total++
		}
	}
	if total != 25 {
		t.Errorf("expected 25 rows across chunks, got %d", total)
	}
}

func TestAdapter_SampleRows(t *testing.T) {
	adapter, pool := openTestAdapter(t)
	ctx := context.Background()

	dropTable(t, pool, "wh_sample")
	mustExec(t, pool, `CREATE TABLE wh_sample (id INT, note TEXT, active BOOLEAN)`)
	mustExec(t, pool, `INSERT INTO wh_sample VALUES (42, NULL, true), (7, 'keep', false)`)
	t.Cleanup(func() { dropTable(t, pool, "wh_sample") })

	rs, err := adapter.SampleRows(ctx, "public", "wh_sample", 10)
	if err != nil {
		t.Fatalf("SampleRows failed: %v", err)
	}
	if rs.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", rs.NumRows())
	}

	for _, row := range rs.Rows {
		for i, v := range row {
			if _, ok := v.(string); !ok {
				t.Fatalf("sample value %d should be text, got %T", i, v)
			}
		}
	}

	byID := make(map[string][]any)
	for _, row := range rs.Rows {
		byID[row[0].(string)] = row
	}
	if row := byID["42"]; row[1] != "" || row[2] != "true" {
		t.Errorf("expected NULL as empty string and bool as text, got %v", row)
	}
	if row := byID["7"]; row[1] != "keep" || row[2] != "false" {
		t.Errorf("unexpected sample row %v", row)
	}

	limited, err := adapter.SampleRows(ctx, "public", "wh_sample", 1)
	if err != nil {
		t.Fatalf("SampleRows with limit failed: %v", err)
	}
	if limited.NumRows() != 1 {
		t.Errorf("expected limit to cap rows, got %d", limited.NumRows())
	}
}

func TestAdapter_WriterLifecycle(t *testing.T) {
	adapter, pool := openTestAdapter(t)
	ctx := context.Background()

	dropTable(t, pool, "wh_write_src")
	dropTable(t, pool, "wh_write_dest")
	mustExec(t, pool, `CREATE TABLE wh_write_src (id BIGINT, name TEXT, joined TIMESTAMP)`)
	mustExec(t, pool, `INSERT INTO wh_write_src VALUES (1, 'one', '2024-05-01 08:00:00')`)
	t.Cleanup(func() {
		dropTable(t, pool, "wh_write_src")
		dropTable(t, pool, "wh_write_dest")
	})

	exists, err := adapter.TableExists(ctx, "public", "wh_write_dest")
	if err != nil {
		t.Fatalf("TableExists failed: %v", err)
	}
	if exists {
		t.Fatal("destination should not exist yet")
	}

	if err := adapter.CreateTableLike(ctx, "public", "wh_write_dest", "public", "wh_write_src"); err != nil {
		t.Fatalf("CreateTableLike failed: %v", err)
	}
	// Idempotent when the destination is already there
	if err := adapter.CreateTableLike(ctx, "public", "wh_write_dest", "public", "wh_write_src"); err != nil {
		t.Fatalf("CreateTableLike second call failed: %v", err)
	}

	exists, err = adapter.TableExists(ctx, "public", "wh_write_dest")
	if err != nil {
		t.Fatalf("TableExists failed: %v", err)
	}
	if !exists {
		t.Fatal("destination should exist after CreateTableLike")
	}

	count, err := adapter.CountRows(ctx, "public", "wh_write_dest")
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("CreateTableLike must not copy rows, got %d", count)
	}

	joined := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	written, err := adapter.AppendRows(ctx, "public", "wh_write_dest", &warehouse.RowSet{
		Columns: []string{"id", "name", "joined"},
		Rows: [][]any{
			{int64(10), "ten", joined},
			{int64(11), "eleven", nil},
		},
	})
	if err != nil {
		t.Fatalf("AppendRows failed: %v", err)
	}
	if written != 2 {
		t.Errorf("expected 2 rows written, got %d", written)
	}

	rs, err := adapter.ReadChunk(ctx, "public", "wh_write_dest", 10, 0)
	if err != nil {
		t.Fatalf("ReadChunk after append failed: %v", err)
	}
	if rs.NumRows() != 2 {
		t.Fatalf("expected 2 rows in destination, got %d", rs.NumRows())
	}
	if rs.Rows[0][1] != "ten" || rs.Rows[1][1] != "eleven" {
		t.Errorf("unexpected destination rows: %v", rs.Rows)
	}
	if rs.Rows[1][2] != nil {
		t.Errorf("expected NULL joined to survive append, got %v", rs.Rows[1][2])
	}

	deleted, err := adapter.DeleteAllRows(ctx, "public", "wh_write_dest")
	if err != nil {
		t.Fatalf("DeleteAllRows failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 rows deleted, got %d", deleted)
	}

	count, err = adapter.CountRows(ctx, "public", "wh_write_dest")
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty destination after delete, got %d", count)
	}
}

func TestAdapter_CreateTableAsSelect(t *testing.T) {
	adapter, pool := openTestAdapter(t)
	ctx := context.Background()

	dropTable(t, pool, "wh_ctas_src")
	dropTable(t, pool, "wh_ctas_dest")
	mustExec(t, pool, `CREATE TABLE wh_ctas_src (id BIGINT, payload TEXT)`)
	mustExec(t, pool, `
		INSERT INTO wh_ctas_src
		SELECT n, 'payload-' || n FROM generate_series(1, 12) AS n
	`)
	t.Cleanup(func() {
		dropTable(t, pool, "wh_ctas_src")
		dropTable(t, pool, "wh_ctas_dest")
	})

	if err := adapter.CreateTableAsSelect(ctx, "public", "wh_ctas_dest", "public", "wh_ctas_src"); err != nil {
		t.Fatalf("CreateTableAsSelect failed: %v", err)
	}

	count, err := adapter.CountRows(ctx, "public", "wh_ctas_dest")
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if count != 12 {
		t.Errorf("expected wholesale copy of 12 rows, got %d", count)
	}

	// A second CTAS against an existing destination must fail
	if err := adapter.CreateTableAsSelect(ctx, "public", "wh_ctas_dest", "public", "wh_ctas_src"); err == nil {
		t.Error("expected error creating an existing table")
	}
}

func TestAdapter_InsertFromTableAndDrop(t *testing.T) {
	adapter, pool := openTestAdapter(t)
	ctx := context.Background()

	dropTable(t, pool, "wh_move_src")
	dropTable(t, pool, "wh_move_dest")
	mustExec(t, pool, `CREATE TABLE wh_move_src (id BIGINT, payload TEXT)`)
	mustExec(t, pool, `
		INSERT INTO wh_move_src
		SELECT n, 'payload-' || n FROM generate_series(1, 7) AS n
	`)
	t.Cleanup(func() {
		dropTable(t, pool, "wh_move_src")
		dropTable(t, pool, "wh_move_dest")
	})

	if err := adapter.CreateTableLike(ctx, "public", "wh_move_dest", "public", "wh_move_src"); err != nil {
		t.Fatalf("CreateTableLike failed: %v", err)
	}

	copied, err := adapter.InsertFromTable(ctx, "public", "wh_move_dest", "public", "wh_move_src")
	if err != nil {
		t.Fatalf("InsertFromTable failed: %v", err)
	}
	if copied != 7 {
		t.Errorf("expected 7 rows copied, got %d", copied)
	}

	count, err := adapter.CountRows(ctx, "public", "wh_move_dest")
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if count != 7 {
		t.Errorf("expected 7 rows in destination, got %d", count)
	}

	if err := adapter.DropTable(ctx, "public", "wh_move_dest"); err != nil {
		t.Fatalf("DropTable failed: %v", err)
	}
	exists, err := adapter.TableExists(ctx, "public", "wh_move_dest")
	if err != nil {
		t.Fatalf("TableExists failed: %v", err)
	}
	if exists {
		t.Error("destination should be gone after DropTable")
	}

	// Dropping a table that does not exist is not an error
	if err := adapter.DropTable(ctx, "public", "wh_move_dest"); err != nil {
		t.Errorf("DropTable on a missing table should be a no-op, got %v", err)
	}
}
