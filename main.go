package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	_ "github.com/veildata/veil-engine/pkg/adapters/warehouse/postgres"
	"github.com/veildata/veil-engine/pkg/auth"
	"github.com/veildata/veil-engine/pkg/compliance"
	"github.com/veildata/veil-engine/pkg/config"
	"github.com/veildata/veil-engine/pkg/crypto"
	"github.com/veildata/veil-engine/pkg/database"
	"github.com/veildata/veil-engine/pkg/handlers"
	"github.com/veildata/veil-engine/pkg/logging"
	"github.com/veildata/veil-engine/pkg/middleware"
	"github.com/veildata/veil-engine/pkg/repositories"
	"github.com/veildata/veil-engine/pkg/retry"
	"github.com/veildata/veil-engine/pkg/services"
	"github.com/veildata/veil-engine/pkg/ui"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Log startup configuration
	log.Printf("Configuration loaded:")
	log.Printf("  Environment: %s", cfg.Env)
	log.Printf("  Base URL: %s", cfg.BaseURL)
	log.Printf("  Deployment mode: %s", cfg.Mode)
	log.Printf("  Auth verification: %v", cfg.Auth.EnableVerification)
	log.Printf("  Metadata store: %s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	log.Printf("  Warehouse: %s at %s:%d/%s", cfg.Warehouse.Type, cfg.Warehouse.Host, cfg.Warehouse.Port, cfg.Warehouse.Database)

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	// Migrations run over database/sql; the repositories share a pgx pool.
	// Both connects retry with backoff so the engine survives starting
	// before its database container is ready.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to open metadata store for migrations: %v", err)
	}
	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		return database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger)
	})
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	_ = migrationDB.Close()

	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		log.Fatalf("Failed to connect to metadata store: %v", err)
	}
	defer db.Close()

	adapter, err := warehouse.New(ctx, cfg.Warehouse.Type, map[string]any{
		"host":      cfg.Warehouse.Host,
		"port":      cfg.Warehouse.Port,
		"user":      cfg.Warehouse.User,
		"password":  cfg.Warehouse.Password,
		"database":  cfg.Warehouse.Database,
		"ssl_mode":  cfg.Warehouse.SSLMode,
		"max_conns": int(cfg.Warehouse.PoolMaxConns),
	})
	if err != nil {
		log.Fatalf("Failed to connect to warehouse: %v", err)
	}
	defer func() { _ = adapter.Close() }()

	if err := adapter.TestConnection(ctx); err != nil {
		logger.Warn("Warehouse connection check failed at startup", zap.Error(err))
	}

	// The transport is fixed at startup: external deployments call the
	// compliance API directly, embedded ones ride the warehouse's HTTP
	// SQL function.
	var transport compliance.Transport
	if cfg.Mode == config.ModeEmbedded {
		caller, ok := adapter.NativeHTTP()
		if !ok {
			log.Fatalf("Embedded mode needs a warehouse with an HTTP SQL function; driver %q has none", cfg.Warehouse.Type)
		}
		transport = compliance.NewWarehouseTransport(caller)
	} else {
		transport = compliance.NewDirectTransport(0)
	}

	encryptor, err := crypto.NewCredentialEncryptor(cfg.SettingsKey)
	if err != nil {
		log.Fatalf("Failed to initialize settings encryptor: %v", err)
	}

	rulesetRepo := repositories.NewRulesetRepository(db)
	algorithmRepo := repositories.NewAlgorithmRepository(db)
	eventsRepo := repositories.NewEventsRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db)

	tracker := services.NewProgressTracker()
	pool := services.NewWorkerPool(cfg.Masking.Workers, logger)

	settingsService := services.NewSettingsService(settingsRepo, encryptor, cfg.Compliance, logger)

	// Credentials resolve through the settings service on every execution,
	// so a dashboard update applies without a restart.
	api := compliance.NewProvider(settingsService, transport, logger)

	discoveryService := services.NewDiscoveryService(adapter, api, rulesetRepo, eventsRepo,
		tracker, pool, cfg.Masking.SampleSize, logger)
	maskingService := services.NewMaskingService(adapter, api, rulesetRepo, eventsRepo,
		tracker, pool, cfg.Masking.ChunkRows, cfg.Masking.PayloadCeilingBytes, logger)
	runsService := services.NewRunsService(eventsRepo, tracker, logger)
	warehouseService := services.NewWarehouseService(adapter, logger)
	rulesetService := services.NewRulesetService(rulesetRepo, algorithmRepo, logger)

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		Audience:           cfg.Auth.Audience,
	})
	if err != nil {
		log.Fatalf("Failed to initialize JWKS client: %v", err)
	}
	defer jwksClient.Close()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger), cfg.Auth.EnableVerification, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewDiscoveryHandler(discoveryService, cfg, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewMaskingHandler(maskingService, cfg, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewRunsHandler(runsService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewWarehouseHandler(warehouseService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewRulesetHandler(rulesetService, cfg, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewSettingsHandler(settingsService, transport, logger).RegisterRoutes(mux, authMiddleware)

	// Dashboard, with its static assets
	ui.NewHandler(discoveryService, maskingService, runsService, warehouseService,
		rulesetService, settingsService, transport, cfg, logger).RegisterRoutes(mux)
	mux.Handle("GET /{$}", http.RedirectHandler("/ui", http.StatusFound))

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	log.Printf("Starting veil-engine on %s (version: %s)", addr, cfg.Version)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
