package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/compliance"
	"github.com/veildata/veil-engine/pkg/config"
	"github.com/veildata/veil-engine/pkg/crypto"
	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/repositories"
)

// maskedSecret is what secret setting values render as everywhere outside
// the token exchange.
const maskedSecret = "********"

// SettingsService manages persisted dashboard settings and resolves the
// compliance API credentials from configuration and the settings store.
// Configuration always wins over stored settings, so operators can pin
// values through the environment.
type SettingsService interface {
	// List returns every stored setting. Secret values are masked.
	List(ctx context.Context) ([]models.Setting, error)

	// Set stores one setting, encrypting secret values at rest.
	Set(ctx context.Context, key, value string) error

	// ComplianceCredentials resolves the base URL and service principal for
	// the compliance API. Returns ErrNotFound when required values are
	// missing from both configuration and the store.
	ComplianceCredentials(ctx context.Context) (string, compliance.Credentials, error)
}

type settingsService struct {
	repo      repositories.SettingsRepository
	encryptor *crypto.CredentialEncryptor
	cfg       config.ComplianceConfig
	logger    *zap.Logger
}

// NewSettingsService creates a new settings service.
func NewSettingsService(
	repo repositories.SettingsRepository,
	encryptor *crypto.CredentialEncryptor,
	cfg config.ComplianceConfig,
	logger *zap.Logger,
) SettingsService {
	return &settingsService{
		repo:      repo,
		encryptor: encryptor,
		cfg:       cfg,
		logger:    logger.Named("settings"),
	}
}

var _ SettingsService = (*settingsService)(nil)

var knownSettingKeys = map[string]bool{
	models.SettingComplianceBaseURL:      true,
	models.SettingComplianceTenantID:     true,
	models.SettingComplianceClientID:     true,
	models.SettingComplianceClientSecret: true,
	models.SettingComplianceScope:        true,
}

func (s *settingsService) List(ctx context.Context) ([]models.Setting, error) {
	settings, err := s.repo.All(ctx)
	if err != nil {
		return nil, apperrors.Persistence("listing settings: %v", err)
	}
	for i := range settings {
		if settings[i].Encrypted && settings[i].Value != "" {
			settings[i].Value = maskedSecret
		}
	}
	return settings, nil
}

func (s *settingsService) Set(ctx context.Context, key, value string) error {
	if !knownSettingKeys[key] {
		return fmt.Errorf("unknown setting %q: %w", key, apperrors.ErrInvalidInput)
	}

	setting := &models.Setting{Key: key, Value: value}
	if models.IsSecretSetting(key) {
		encrypted, err := s.encryptor.Encrypt(value)
		if err != nil {
			return fmt.Errorf("encrypting setting %s: %w", key, err)
		}
		setting.Value = encrypted
		setting.Encrypted = true
	}

	if err := s.repo.Set(ctx, setting); err != nil {
		return apperrors.Persistence("storing setting %s: %v", key, err)
	}

	s.logger.Info("Setting stored",
		zap.String("key", key),
		zap.Bool("encrypted", setting.Encrypted))
	return nil
}

func (s *settingsService) ComplianceCredentials(ctx context.Context) (string, compliance.Credentials, error) {
	baseURL, err := s.resolve(ctx, s.cfg.BaseURL, models.SettingComplianceBaseURL)
	if err != nil {
		return "", compliance.Credentials{}, err
	}
	tenantID, err := s.resolve(ctx, s.cfg.TenantID, models.SettingComplianceTenantID)
	if err != nil {
		return "", compliance.Credentials{}, err
	}
	clientID, err := s.resolve(ctx, s.cfg.ClientID, models.SettingComplianceClientID)
	if err != nil {
		return "", compliance.Credentials{}, err
	}
	clientSecret, err := s.resolve(ctx, s.cfg.ClientSecret, models.SettingComplianceClientSecret)
	if err != nil {
		return "", compliance.Credentials{}, err
	}
	scope, err := s.resolve(ctx, s.cfg.Scope, models.SettingComplianceScope)
	if err != nil {
		return "", compliance.Credentials{}, err
	}

	if baseURL == "" || tenantID == "" || clientID == "" || clientSecret == "" {
		return "", compliance.Credentials{}, fmt.Errorf(
			"compliance api is not configured; set base url, tenant, client id and secret: %w",
			apperrors.ErrNotFound)
	}

	tokenURL := s.cfg.TokenURL
	if tokenURL == "" {
		tokenURL = compliance.TokenURLForTenant(tenantID)
	}

	return baseURL, compliance.Credentials{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scope:        scope,
	}, nil
}

// resolve returns the configured value when present, otherwise the stored
// setting, decrypted if it is a secret.
func (s *settingsService) resolve(ctx context.Context, configured, key string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", apperrors.Persistence("loading setting %s: %v", key, err)
	}
	if setting == nil {
		return "", nil
	}

	if setting.Encrypted {
		plaintext, err := s.encryptor.Decrypt(setting.Value)
		if err != nil {
			if errors.Is(err, crypto.ErrDecryptionFailed) {
				return "", fmt.Errorf("setting %s: %w", key, apperrors.ErrCredentialsKey)
			}
			return "", fmt.Errorf("decrypting setting %s: %w", key, err)
		}
		return plaintext, nil
	}
	return setting.Value, nil
}
