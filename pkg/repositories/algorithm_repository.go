package repositories

import (
	"context"
	"fmt"

	"github.com/veildata/veil-engine/pkg/database"
	"github.com/veildata/veil-engine/pkg/models"
)

// AlgorithmRepository provides read access to the masking algorithm catalog.
type AlgorithmRepository interface {
	// ListActive returns the names of active algorithms, sorted.
	ListActive(ctx context.Context) ([]string, error)

	// List returns the whole catalog, sorted by name.
	List(ctx context.Context) ([]models.Algorithm, error)
}

type algorithmRepository struct {
	db *database.DB
}

// NewAlgorithmRepository creates a new AlgorithmRepository.
func NewAlgorithmRepository(db *database.DB) AlgorithmRepository {
	return &algorithmRepository{db: db}
}

var _ AlgorithmRepository = (*algorithmRepository)(nil)

func (r *algorithmRepository) ListActive(ctx context.Context) ([]string, error) {
	query := `
		SELECT algorithm_name
		FROM dcs_algorithms
		WHERE is_active = TRUE
		ORDER BY algorithm_name
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active algorithms: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan algorithm name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate algorithms: %w", err)
	}

	return names, nil
}

func (r *algorithmRepository) List(ctx context.Context) ([]models.Algorithm, error) {
	query := `
		SELECT algorithm_name, algorithm_type, is_active
		FROM dcs_algorithms
		ORDER BY algorithm_name
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query algorithm catalog: %w", err)
	}
	defer rows.Close()

	var algorithms []models.Algorithm
	for rows.Next() {
		var alg models.Algorithm
		if err := rows.Scan(&alg.Name, &alg.Type, &alg.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan algorithm: %w", err)
		}
		algorithms = append(algorithms, alg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate algorithm catalog: %w", err)
	}

	return algorithms, nil
}
