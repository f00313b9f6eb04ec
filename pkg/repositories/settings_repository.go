package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/veildata/veil-engine/pkg/database"
	"github.com/veildata/veil-engine/pkg/models"
)

// SettingsRepository provides data access for persisted dashboard settings.
// Values arrive here already encrypted when the key is a secret.
type SettingsRepository interface {
	// Get retrieves one setting, or nil if it was never stored.
	Get(ctx context.Context, key string) (*models.Setting, error)

	// Set stores a setting, replacing any previous value.
	Set(ctx context.Context, setting *models.Setting) error

	// All retrieves every stored setting, sorted by key.
	All(ctx context.Context) ([]models.Setting, error)
}

type settingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *database.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

var _ SettingsRepository = (*settingsRepository)(nil)

func (r *settingsRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	query := `
		SELECT setting_key, setting_value, encrypted, updated_at
		FROM engine_settings
		WHERE setting_key = $1
	`

	var setting models.Setting
	err := r.db.Pool.QueryRow(ctx, query, key).Scan(
		&setting.Key, &setting.Value, &setting.Encrypted, &setting.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}

	return &setting, nil
}

func (r *settingsRepository) Set(ctx context.Context, setting *models.Setting) error {
	query := `
		INSERT INTO engine_settings (setting_key, setting_value, encrypted, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (setting_key)
		DO UPDATE SET
			setting_value = EXCLUDED.setting_value,
			encrypted = EXCLUDED.encrypted,
			updated_at = NOW()
	`

	_, err := r.db.Pool.Exec(ctx, query, setting.Key, setting.Value, setting.Encrypted)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", setting.Key, err)
	}

	return nil
}

func (r *settingsRepository) All(ctx context.Context) ([]models.Setting, error) {
	query := `
		SELECT setting_key, setting_value, encrypted, updated_at
		FROM engine_settings
		ORDER BY setting_key
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	var settings []models.Setting
	for rows.Next() {
		var setting models.Setting
		if err := rows.Scan(&setting.Key, &setting.Value, &setting.Encrypted, &setting.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settings: %w", err)
	}

	return settings, nil
}
