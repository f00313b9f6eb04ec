package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/database"
	"github.com/veildata/veil-engine/pkg/models"
)

// MergeResult reports what a metadata merge did.
type MergeResult struct {
	Inserted int
	Updated  int
}

// RulesetRepository provides data access for the discovered ruleset.
// Rows are keyed by (database, schema, table, column).
type RulesetRepository interface {
	// UpsertColumnMetadata merges column metadata into the ruleset. New
	// columns are inserted with latest_event 'metadata_loaded'; existing
	// rows get their structural fields refreshed with latest_event
	// 'metadata_updated' while profiled_* and assigned_algorithm are
	// preserved.
	UpsertColumnMetadata(ctx context.Context, columns []models.DiscoveredColumn) (*MergeResult, error)

	// ApplyDiscovery records profiling results for one table: rows_profiled
	// on every column, then domain/algorithm/confidence on each detected
	// column. A user-assigned algorithm is never overwritten; the profiled
	// algorithm only fills an empty assignment.
	ApplyDiscovery(ctx context.Context, table models.TableRef, detections []models.ProfiledColumn, rowsProfiled int) (int, error)

	// AssignAlgorithm sets the algorithm for one column. An empty algorithm
	// clears the assignment.
	AssignAlgorithm(ctx context.Context, database, schema, table, column, algorithm string) error

	// GetTableRuleset retrieves one table's columns in ordinal order.
	GetTableRuleset(ctx context.Context, database, schema, table string) ([]models.DiscoveredColumn, error)

	// GetSchemaRuleset retrieves every known column under a schema, ordered
	// by table then ordinal position.
	GetSchemaRuleset(ctx context.Context, database, schema string) ([]models.DiscoveredColumn, error)

	// ListTables returns the distinct table names known under a schema.
	ListTables(ctx context.Context, database, schema string) ([]string, error)
}

type rulesetRepository struct {
	db *database.DB
}

// NewRulesetRepository creates a new RulesetRepository.
func NewRulesetRepository(db *database.DB) RulesetRepository {
	return &rulesetRepository{db: db}
}

var _ RulesetRepository = (*rulesetRepository)(nil)

func (r *rulesetRepository) UpsertColumnMetadata(ctx context.Context, columns []models.DiscoveredColumn) (*MergeResult, error) {
	query := `
		INSERT INTO discovered_ruleset (
			specified_database, specified_schema, identified_table, identified_column,
			identified_column_type, identified_column_max_length, ordinal_position,
			row_count, discovery_complete, latest_event, last_profiled_updated_timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, 'metadata_loaded', NOW())
		ON CONFLICT (specified_database, specified_schema, identified_table, identified_column)
		DO UPDATE SET
			identified_column_type = EXCLUDED.identified_column_type,
			identified_column_max_length = EXCLUDED.identified_column_max_length,
			ordinal_position = EXCLUDED.ordinal_position,
			row_count = EXCLUDED.row_count,
			latest_event = 'metadata_updated',
			last_profiled_updated_timestamp = NOW()
		RETURNING (xmax = 0) AS inserted
	`

	result := &MergeResult{}
	for _, col := range columns {
		maxLength := -1
		if col.MaxLength != nil {
			maxLength = *col.MaxLength
		}

		var inserted bool
		err := r.db.Pool.QueryRow(ctx, query,
			col.DatabaseName, col.SchemaName, col.TableName, col.ColumnName,
			col.ColumnType, maxLength, col.OrdinalPosition, col.RowCount,
		).Scan(&inserted)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert ruleset row for %s.%s.%s: %w",
				col.SchemaName, col.TableName, col.ColumnName, err)
		}

		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	return result, nil
}

func (r *rulesetRepository) ApplyDiscovery(ctx context.Context, table models.TableRef, detections []models.ProfiledColumn, rowsProfiled int) (int, error) {
	rowsQuery := `
		UPDATE discovered_ruleset
		SET rows_profiled = $4,
			last_profiled_updated_timestamp = NOW()
		WHERE specified_database = $1
		AND specified_schema = $2
		AND identified_table = $3
	`

	_, err := r.db.Pool.Exec(ctx, rowsQuery, table.Database, table.Schema, table.Table, rowsProfiled)
	if err != nil {
		return 0, fmt.Errorf("failed to record rows profiled for %s: %w", table, err)
	}

	detectionQuery := `
		UPDATE discovered_ruleset
		SET profiled_domain = $5,
			profiled_algorithm = $6,
			confidence_score = $7,
			assigned_algorithm = CASE
				WHEN assigned_algorithm IS NULL OR assigned_algorithm = '' THEN $6
				ELSE assigned_algorithm
			END,
			discovery_complete = TRUE,
			latest_event = 'discovery_completed',
			last_profiled_updated_timestamp = NOW()
		WHERE specified_database = $1
		AND specified_schema = $2
		AND identified_table = $3
		AND identified_column = $4
	`

	updated := 0
	for _, det := range detections {
		tag, err := r.db.Pool.Exec(ctx, detectionQuery,
			table.Database, table.Schema, table.Table, det.ColumnName,
			det.Domain, det.Algorithm, det.Confidence,
		)
		if err != nil {
			return updated, fmt.Errorf("failed to apply discovery result for column %s: %w", det.ColumnName, err)
		}
		updated += int(tag.RowsAffected())
	}

	return updated, nil
}

func (r *rulesetRepository) AssignAlgorithm(ctx context.Context, database, schema, table, column, algorithm string) error {
	query := `
		UPDATE discovered_ruleset
		SET assigned_algorithm = NULLIF($5, ''),
			latest_event = 'algorithm_updated',
			last_profiled_updated_timestamp = NOW()
		WHERE specified_database = $1
		AND specified_schema = $2
		AND identified_table = $3
		AND identified_column = $4
	`

	tag, err := r.db.Pool.Exec(ctx, query, database, schema, table, column, algorithm)
	if err != nil {
		return fmt.Errorf("failed to assign algorithm for column %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("column %s.%s.%s not in ruleset: %w", schema, table, column, apperrors.ErrNotFound)
	}

	return nil
}

const discoveredColumnFields = `
	specified_database, specified_schema, identified_table, identified_column,
	identified_column_type, identified_column_max_length, ordinal_position,
	row_count, profiled_domain, profiled_algorithm, confidence_score,
	rows_profiled, assigned_algorithm, discovery_complete, latest_event,
	last_profiled_updated_timestamp
`

func (r *rulesetRepository) GetTableRuleset(ctx context.Context, database, schema, table string) ([]models.DiscoveredColumn, error) {
	query := `
		SELECT ` + discoveredColumnFields + `
		FROM discovered_ruleset
		WHERE specified_database = $1
		AND specified_schema = $2
		AND identified_table = $3
		ORDER BY ordinal_position
	`

	rows, err := r.db.Pool.Query(ctx, query, database, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query table ruleset: %w", err)
	}
	defer rows.Close()

	return scanDiscoveredColumns(rows)
}

func (r *rulesetRepository) GetSchemaRuleset(ctx context.Context, database, schema string) ([]models.DiscoveredColumn, error) {
	query := `
		SELECT ` + discoveredColumnFields + `
		FROM discovered_ruleset
		WHERE specified_database = $1
		AND specified_schema = $2
		ORDER BY identified_table, ordinal_position
	`

	rows, err := r.db.Pool.Query(ctx, query, database, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema ruleset: %w", err)
	}
	defer rows.Close()

	return scanDiscoveredColumns(rows)
}

func (r *rulesetRepository) ListTables(ctx context.Context, database, schema string) ([]string, error) {
	query := `
		SELECT DISTINCT identified_table
		FROM discovered_ruleset
		WHERE specified_database = $1
		AND specified_schema = $2
		ORDER BY identified_table
	`

	rows, err := r.db.Pool.Query(ctx, query, database, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list ruleset tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ruleset tables: %w", err)
	}

	return tables, nil
}

func scanDiscoveredColumns(rows pgx.Rows) ([]models.DiscoveredColumn, error) {
	var columns []models.DiscoveredColumn
	for rows.Next() {
		var col models.DiscoveredColumn
		var maxLength int
		err := rows.Scan(
			&col.DatabaseName, &col.SchemaName, &col.TableName, &col.ColumnName,
			&col.ColumnType, &maxLength, &col.OrdinalPosition,
			&col.RowCount, &col.ProfiledDomain, &col.ProfiledAlgorithm, &col.ConfidenceScore,
			&col.RowsProfiled, &col.AssignedAlgorithm, &col.DiscoveryComplete, &col.LatestEvent,
			&col.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ruleset row: %w", err)
		}
		if maxLength >= 0 {
			col.MaxLength = &maxLength
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ruleset rows: %w", err)
	}

	return columns, nil
}
