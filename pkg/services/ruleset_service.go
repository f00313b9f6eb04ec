package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/repositories"
)

// RulesetService reads and edits the discovered ruleset: what discovery
// found, and which masking algorithm each column is assigned.
type RulesetService interface {
	// TableRuleset returns one table's columns in ordinal order, or
	// ErrNotFound when discovery has never seen the table.
	TableRuleset(ctx context.Context, table models.TableRef) ([]models.DiscoveredColumn, error)

	// SchemaRuleset returns every known column under a schema. An empty
	// result means discovery has not run there yet.
	SchemaRuleset(ctx context.Context, database, schema string) ([]models.DiscoveredColumn, error)

	// KnownTables returns the distinct tables discovery has recorded under a
	// schema.
	KnownTables(ctx context.Context, database, schema string) ([]string, error)

	// Algorithms returns the masking algorithm catalog.
	Algorithms(ctx context.Context) ([]models.Algorithm, error)

	// AssignAlgorithm sets a column's masking algorithm, validated against
	// the active catalog. An empty algorithm clears the assignment.
	AssignAlgorithm(ctx context.Context, table models.TableRef, column, algorithm string) error
}

type rulesetService struct {
	rulesetRepo   repositories.RulesetRepository
	algorithmRepo repositories.AlgorithmRepository
	logger        *zap.Logger
}

// NewRulesetService creates a new ruleset service.
func NewRulesetService(
	rulesetRepo repositories.RulesetRepository,
	algorithmRepo repositories.AlgorithmRepository,
	logger *zap.Logger,
) RulesetService {
	return &rulesetService{
		rulesetRepo:   rulesetRepo,
		algorithmRepo: algorithmRepo,
		logger:        logger.Named("ruleset"),
	}
}

var _ RulesetService = (*rulesetService)(nil)

func (s *rulesetService) TableRuleset(ctx context.Context, table models.TableRef) ([]models.DiscoveredColumn, error) {
	columns, err := s.rulesetRepo.GetTableRuleset(ctx, table.Database, table.Schema, table.Table)
	if err != nil {
		return nil, apperrors.Persistence("loading ruleset for %s: %v", table, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("no discovery metadata for %s: %w", table, apperrors.ErrNotFound)
	}
	return columns, nil
}

func (s *rulesetService) SchemaRuleset(ctx context.Context, database, schema string) ([]models.DiscoveredColumn, error) {
	columns, err := s.rulesetRepo.GetSchemaRuleset(ctx, database, schema)
	if err != nil {
		return nil, apperrors.Persistence("loading ruleset for schema %s: %v", schema, err)
	}
	return columns, nil
}

func (s *rulesetService) KnownTables(ctx context.Context, database, schema string) ([]string, error) {
	tables, err := s.rulesetRepo.ListTables(ctx, database, schema)
	if err != nil {
		return nil, apperrors.Persistence("listing known tables for schema %s: %v", schema, err)
	}
	return tables, nil
}

func (s *rulesetService) Algorithms(ctx context.Context) ([]models.Algorithm, error) {
	algorithms, err := s.algorithmRepo.List(ctx)
	if err != nil {
		return nil, apperrors.Persistence("loading algorithm catalog: %v", err)
	}
	return algorithms, nil
}

func (s *rulesetService) AssignAlgorithm(ctx context.Context, table models.TableRef, column, algorithm string) error {
	if column == "" {
		return fmt.Errorf("column name is required: %w", apperrors.ErrInvalidInput)
	}

	if algorithm != "" {
		active, err := s.algorithmRepo.ListActive(ctx)
		if err != nil {
			return apperrors.Persistence("loading active algorithms: %v", err)
		}
		if !slices.Contains(active, algorithm) {
			return fmt.Errorf("algorithm %q is not in the active catalog: %w", algorithm, apperrors.ErrInvalidInput)
		}
	}

	err := s.rulesetRepo.AssignAlgorithm(ctx, table.Database, table.Schema, table.Table, column, algorithm)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return apperrors.Persistence("assigning algorithm for %s.%s: %v", table, column, err)
	}

	s.logger.Info("Algorithm assignment changed",
		zap.String("table", table.String()),
		zap.String("column", column),
		zap.String("algorithm", algorithm))
	return nil
}
