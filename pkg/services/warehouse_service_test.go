package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	"github.com/veildata/veil-engine/pkg/apperrors"
)

func newWarehouseFixture() (WarehouseService, *fakeAdapter) {
	adapter := &fakeAdapter{}
	svc := NewWarehouseService(adapter, zap.NewNop())
	return svc, adapter
}

func TestWarehouseService_Schemas(t *testing.T) {
	svc, adapter := newWarehouseFixture()
	adapter.listSchemasFn = func() ([]string, error) {
		return []string{"public", "sales"}, nil
	}

	schemas, err := svc.Schemas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"public", "sales"}, schemas)
}

func TestWarehouseService_SchemasAccessError(t *testing.T) {
	svc, adapter := newWarehouseFixture()
	adapter.listSchemasFn = func() ([]string, error) {
		return nil, assert.AnError
	}

	_, err := svc.Schemas(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAccess)
}

func TestWarehouseService_Tables(t *testing.T) {
	svc, adapter := newWarehouseFixture()
	adapter.listTablesFn = func(schema string) ([]warehouse.TableInfo, error) {
		require.Equal(t, "sales", schema)
		return []warehouse.TableInfo{
			{SchemaName: "sales", TableName: "accounts", RowCount: 120},
		}, nil
	}

	tables, err := svc.Tables(context.Background(), "sales")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "accounts", tables[0].TableName)
}

func TestWarehouseService_TablesRejectsUnsafeSchema(t *testing.T) {
	svc, adapter := newWarehouseFixture()

	_, err := svc.Tables(context.Background(), `sales"; DROP TABLE x--`)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, adapter.callLog(), "unsafe name must never reach the adapter")
}

func TestWarehouseService_Columns(t *testing.T) {
	svc, adapter := newWarehouseFixture()
	adapter.describeTableFn = func(schema, table string) ([]warehouse.ColumnInfo, error) {
		return []warehouse.ColumnInfo{
			{Name: "id", DataType: "INTEGER", OrdinalPosition: 1},
			{Name: "email", DataType: "TEXT", OrdinalPosition: 2},
		}, nil
	}

	columns, err := svc.Columns(context.Background(), "public", "accounts")
	require.NoError(t, err)
	require.Len(t, columns, 2)
	assert.Equal(t, "email", columns[1].Name)
}

func TestWarehouseService_ColumnsMissingTable(t *testing.T) {
	svc, adapter := newWarehouseFixture()
	adapter.describeTableFn = func(schema, table string) ([]warehouse.ColumnInfo, error) {
		return nil, nil
	}

	_, err := svc.Columns(context.Background(), "public", "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestWarehouseService_ColumnsRejectsUnsafeTable(t *testing.T) {
	svc, adapter := newWarehouseFixture()

	_, err := svc.Columns(context.Background(), "public", "accounts; DELETE FROM accounts")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, adapter.callLog())
}

func TestWarehouseService_TestConnection(t *testing.T) {
	svc, adapter := newWarehouseFixture()

	require.NoError(t, svc.TestConnection(context.Background()))

	adapter.testConnectionFn = func() error { return assert.AnError }
	err := svc.TestConnection(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAccess)
}
