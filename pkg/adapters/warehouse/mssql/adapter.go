//go:build mssql || all_adapters

package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	"github.com/veildata/veil-engine/pkg/config"
)

// Adapter provides SQL Server warehouse connectivity over a shared
// database/sql pool.
type Adapter struct {
	config *Config
	db     *sql.DB
}

// buildConnectionString builds a sqlserver:// URL with proper escaping.
func buildConnectionString(cfg *Config) string {
	query := url.Values{}
	query.Add("database", cfg.Database)

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}

	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		config.ResolveWarehouseHost(cfg.Host),
		cfg.Port,
		query.Encode(),
	)
}

// NewAdapter creates a SQL Server adapter and verifies connectivity.
func NewAdapter(ctx context.Context, cfg *Config) (*Adapter, error) {
	db, err := sql.Open("sqlserver", buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &Adapter{
		config: cfg,
		db:     db,
	}, nil
}

// TestConnection verifies the database is reachable with valid credentials
// and that the session landed on the configured database.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	var currentDB string
	if err := a.db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}

	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}

	return nil
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// QuoteIdentifier quotes an identifier with SQL Server square brackets,
// escaping ] as ]].
func (a *Adapter) QuoteIdentifier(name string) string {
	return quoteName(name)
}

// NativeHTTP reports that SQL Server has no HTTP SQL function; the engine
// must run in external mode against SQL Server warehouses.
func (a *Adapter) NativeHTTP() (warehouse.HTTPCaller, bool) {
	return nil, false
}

// quoteName returns a bracket-quoted identifier, the SQL Server equivalent of
// QUOTENAME().
func quoteName(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "]", "]]")
	return fmt.Sprintf("[%s]", escaped)
}

// escapeStringLiteral escapes a string for use in SQL Server string literals.
// In SQL Server, single quotes are escaped by doubling them.
func escapeStringLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// buildFullyQualifiedName builds a fully qualified table name: [schema].[table]
func buildFullyQualifiedName(schema, table string) string {
	return fmt.Sprintf("%s.%s", quoteName(schema), quoteName(table))
}

// Ensure Adapter implements the full warehouse contract at compile time.
var _ warehouse.Adapter = (*Adapter)(nil)
