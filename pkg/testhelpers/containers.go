package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/database"
)

// PostgresTestImage is the image integration tests run against.
const PostgresTestImage = "postgres:16-alpine"

// TestDB holds a shared test database container and connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresTestImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "veil_metadata_test",
			"POSTGRES_USER":     "veil",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://veil:test_password@%s:%s/veil_metadata_test?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}

// MetadataDB holds the metadata store connection with migrations applied.
// Use this for testing handlers, services, and repositories against a real
// database.
type MetadataDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedMetadataDB     *MetadataDB
	sharedMetadataDBOnce sync.Once
	sharedMetadataDBErr  error
)

// GetMetadataDB returns a shared metadata store for integration tests.
// The database has migrations applied and is reused across all tests.
func GetMetadataDB(t *testing.T) *MetadataDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	// Ensure test container is running first
	testDB := GetTestDB(t)

	sharedMetadataDBOnce.Do(func() {
		sharedMetadataDB, sharedMetadataDBErr = setupMetadataDB(testDB)
	})

	if sharedMetadataDBErr != nil {
		t.Fatalf("Failed to setup metadata store: %v", sharedMetadataDBErr)
	}

	return sharedMetadataDB
}

func setupMetadataDB(testDB *TestDB) (*MetadataDB, error) {
	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            testDB.ConnStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to metadata store: %w", err)
	}

	// Run migrations using database/sql (required by golang-migrate)
	sqlDB, err := sql.Open("pgx", testDB.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, migrationsDir(), zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &MetadataDB{
		DB:      db,
		ConnStr: testDB.ConnStr,
	}, nil
}

// migrationsDir resolves the migrations directory relative to this source
// file, so tests work from any package depth.
func migrationsDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations")
}

// WarehouseDB is a scratch database on the shared container that adapter
// tests treat as a user warehouse. Tables created here are the tests' own
// responsibility to clean up.
type WarehouseDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

var (
	sharedWarehouseDB     *WarehouseDB
	sharedWarehouseDBOnce sync.Once
	sharedWarehouseDBErr  error
)

// GetWarehouseDB returns a shared scratch warehouse database for adapter
// integration tests.
func GetWarehouseDB(t *testing.T) *WarehouseDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	testDB := GetTestDB(t)

	sharedWarehouseDBOnce.Do(func() {
		sharedWarehouseDB, sharedWarehouseDBErr = setupWarehouseDB(testDB)
	})

	if sharedWarehouseDBErr != nil {
		t.Fatalf("Failed to setup warehouse database: %v", sharedWarehouseDBErr)
	}

	return sharedWarehouseDB
}

func setupWarehouseDB(testDB *TestDB) (*WarehouseDB, error) {
	ctx := context.Background()

	if _, err := testDB.Pool.Exec(ctx, "CREATE DATABASE veil_warehouse_test"); err != nil {
		return nil, fmt.Errorf("failed to create warehouse database: %w", err)
	}

	host, err := testDB.Container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := testDB.Container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://veil:test_password@%s:%s/veil_warehouse_test?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse database: %w", err)
	}

	return &WarehouseDB{
		Pool:    pool,
		ConnStr: connStr,
	}, nil
}
