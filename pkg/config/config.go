package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Deployment modes. External runs the engine outside the warehouse and calls
// the compliance API with a direct HTTP client; embedded runs alongside the
// warehouse and routes API calls through the warehouse's HTTP SQL function.
const (
	ModeExternal = "external"
	ModeEmbedded = "embedded"
)

// Config holds all configuration for veil-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Mode selects the compliance API transport once at startup.
	// "external" uses a direct HTTP client; "embedded" calls through the
	// warehouse's HTTP function. Never re-detected at runtime.
	Mode string `yaml:"mode" env:"DEPLOYMENT_MODE" env-default:"external"`

	// Authentication configuration for the JSON API
	Auth AuthConfig `yaml:"auth"`

	// Database configuration for the metadata store (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Warehouse holds the default warehouse connection the dashboard operates on.
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// Compliance holds the external classification/masking API settings.
	Compliance ComplianceConfig `yaml:"compliance"`

	// Masking holds batching and concurrency limits.
	Masking MaskingConfig `yaml:"masking"`

	// SessionKey signs dashboard session cookies.
	// Generate with: openssl rand -base64 32
	SessionKey string `yaml:"-" env:"SESSION_KEY"` // Secret - not in YAML

	// SettingsKey encrypts credentials persisted in engine_settings.
	// Must be a 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	SettingsKey string `yaml:"-" env:"SETTINGS_KEY"` // Secret - not in YAML
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether API bearer tokens are validated.
	// Set to false for local development without an identity provider.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"false"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// Audience optionally pins the aud claim verified tokens must carry,
	// keeping tokens minted for sibling services out of the engine.
	Audience string `yaml:"audience" env:"JWT_AUDIENCE" env-default:""`
}

// DatabaseConfig holds PostgreSQL metadata store configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"veil"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"veil_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// WarehouseConfig holds the connection settings for the warehouse whose
// tables are profiled and masked.
type WarehouseConfig struct {
	Type         string `yaml:"type" env:"WAREHOUSE_TYPE" env-default:"postgres"`
	Host         string `yaml:"host" env:"WAREHOUSE_HOST" env-default:"localhost"`
	Port         int    `yaml:"port" env:"WAREHOUSE_PORT" env-default:"5432"`
	User         string `yaml:"user" env:"WAREHOUSE_USER" env-default:""`
	Password     string `yaml:"-" env:"WAREHOUSE_PASSWORD"` // Secret - not in YAML
	Database     string `yaml:"database" env:"WAREHOUSE_DATABASE" env-default:""`
	SSLMode      string `yaml:"ssl_mode" env:"WAREHOUSE_SSLMODE" env-default:"disable"`
	PoolMaxConns int32  `yaml:"pool_max_conns" env:"WAREHOUSE_POOL_MAX_CONNS" env-default:"10"`
	PoolMinConns int32  `yaml:"pool_min_conns" env:"WAREHOUSE_POOL_MIN_CONNS" env-default:"1"`
}

// ComplianceConfig holds the external compliance API surface.
// ClientSecret may instead be stored encrypted in engine_settings; a value
// here takes precedence.
type ComplianceConfig struct {
	BaseURL      string `yaml:"base_url" env:"COMPLIANCE_BASE_URL" env-default:""`
	TenantID     string `yaml:"tenant_id" env:"COMPLIANCE_TENANT_ID" env-default:""`
	ClientID     string `yaml:"client_id" env:"COMPLIANCE_CLIENT_ID" env-default:""`
	ClientSecret string `yaml:"-" env:"COMPLIANCE_CLIENT_SECRET"` // Secret - not in YAML
	Scope        string `yaml:"scope" env:"COMPLIANCE_SCOPE" env-default:"https://analysis.windows.net/powerbi/api/.default"`

	// TokenURL overrides the derived login endpoint (tests, sovereign clouds).
	TokenURL string `yaml:"token_url" env:"COMPLIANCE_TOKEN_URL" env-default:""`
}

// MaskingConfig holds batching and concurrency limits for discovery and
// masking workflows.
type MaskingConfig struct {
	// PayloadCeilingBytes caps the serialized size of one masking request.
	PayloadCeilingBytes int `yaml:"payload_ceiling_bytes" env:"MASKING_PAYLOAD_CEILING_BYTES" env-default:"1800000"`
	// ChunkRows is how many rows one warehouse read fetches.
	ChunkRows int `yaml:"chunk_rows" env:"MASKING_CHUNK_ROWS" env-default:"10000"`
	// Workers caps concurrent per-table jobs. Sized for host memory, not CPU.
	Workers int `yaml:"workers" env:"MASKING_WORKERS" env-default:"4"`
	// SampleSize is how many rows discovery profiles per table.
	SampleSize int `yaml:"sample_size" env:"DISCOVERY_SAMPLE_SIZE" env-default:"1000"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Environment variables override YAML values. Secrets (PGPASSWORD,
// COMPLIANCE_CLIENT_SECRET, SESSION_KEY, SETTINGS_KEY) must come from
// environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// No config.yaml is fine; run on env vars and defaults alone.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	return nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeExternal, ModeEmbedded:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeExternal, ModeEmbedded, c.Mode)
	}
	// The embedded transport rides the warehouse's HTTP SQL function, which
	// only the postgres adapter provides.
	if c.Mode == ModeEmbedded && c.Warehouse.Type != "postgres" {
		return fmt.Errorf("embedded mode requires a postgres warehouse, got %q", c.Warehouse.Type)
	}
	if c.Auth.EnableVerification && len(c.Auth.JWKSEndpoints) == 0 {
		return fmt.Errorf("auth verification enabled but no JWKS endpoints configured")
	}
	if c.Masking.Workers < 1 {
		return fmt.Errorf("masking workers must be at least 1, got %d", c.Masking.Workers)
	}
	if c.Masking.PayloadCeilingBytes < 1 {
		return fmt.Errorf("payload ceiling must be positive, got %d", c.Masking.PayloadCeilingBytes)
	}
	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string for the metadata store.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
