package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/logging"
	"github.com/veildata/veil-engine/pkg/sql"
)

// WarehouseService exposes warehouse browsing to the dashboard. Names coming
// in from forms pass the identifier gate before they reach any generated SQL.
type WarehouseService interface {
	// TestConnection verifies the warehouse is reachable.
	TestConnection(ctx context.Context) error

	// Schemas lists user schemas.
	Schemas(ctx context.Context) ([]string, error)

	// Tables lists base tables in one schema with row counts.
	Tables(ctx context.Context, schema string) ([]warehouse.TableInfo, error)

	// Columns describes one table's columns in ordinal order.
	Columns(ctx context.Context, schema, table string) ([]warehouse.ColumnInfo, error)
}

type warehouseService struct {
	adapter warehouse.Adapter
	logger  *zap.Logger
}

// NewWarehouseService creates a new warehouse browsing service.
func NewWarehouseService(adapter warehouse.Adapter, logger *zap.Logger) WarehouseService {
	return &warehouseService{
		adapter: adapter,
		logger:  logger.Named("warehouse"),
	}
}

var _ WarehouseService = (*warehouseService)(nil)

func (s *warehouseService) TestConnection(ctx context.Context) error {
	if err := s.adapter.TestConnection(ctx); err != nil {
		s.logger.Warn("Warehouse connection test failed",
			zap.String("error", logging.SanitizeError(err)))
		return apperrors.Access("warehouse connection failed: %v", err)
	}
	return nil
}

func (s *warehouseService) Schemas(ctx context.Context) ([]string, error) {
	schemas, err := s.adapter.ListSchemas(ctx)
	if err != nil {
		return nil, apperrors.Access("listing schemas: %v", err)
	}
	return schemas, nil
}

func (s *warehouseService) Tables(ctx context.Context, schema string) ([]warehouse.TableInfo, error) {
	if err := sql.ValidateIdentifier("schema", schema); err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperrors.ErrInvalidInput)
	}

	tables, err := s.adapter.ListTables(ctx, schema)
	if err != nil {
		return nil, apperrors.Access("listing tables in %s: %v", schema, err)
	}
	return tables, nil
}

func (s *warehouseService) Columns(ctx context.Context, schema, table string) ([]warehouse.ColumnInfo, error) {
	if err := sql.ValidateIdentifier("schema", schema); err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperrors.ErrInvalidInput)
	}
	if err := sql.ValidateIdentifier("table", table); err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperrors.ErrInvalidInput)
	}

	columns, err := s.adapter.DescribeTable(ctx, schema, table)
	if err != nil {
		return nil, apperrors.Access("describing %s.%s: %v", schema, table, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s.%s: %w", schema, table, apperrors.ErrNotFound)
	}
	return columns, nil
}
