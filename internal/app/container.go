package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/handler"
	"github.com/noah-isme/edu-portal-api/internal/repository"
	"github.com/noah-isme/edu-portal-api/internal/service"
	"github.com/noah-isme/edu-portal-api/pkg/cache"
	"github.com/noah-isme/edu-portal-api/pkg/config"
	"github.com/noah-isme/edu-portal-api/pkg/database"
	"github.com/noah-isme/edu-portal-api/pkg/export"
	"github.com/noah-isme/edu-portal-api/pkg/sheets"
	"github.com/noah-isme/edu-portal-api/pkg/storage"
)

const redisNamespace = "edu-portal:"

// Container holds the wired dependencies of one process.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *sqlx.DB
	Redis *redis.Client

	Audit   *repository.AuditRepository
	Metrics *service.MetricsService
	Auth    *service.AuthService

	Ledger     *service.LedgerSyncService
	Requests   *service.PurchaseRequestService
	Access     *service.AccessGrantService
	Processing *service.RequestProcessingService
	Reconciler *service.ReconciliationService
	Exporter   *service.ExportService
	Snapshots  *service.SnapshotService

	PurchaseRequestHandler *handler.PurchaseRequestHandler
	AdminHandler           *handler.AdminHandler
	LedgerHandler          *handler.LedgerHandler
	SnapshotHandler        *handler.SnapshotHandler
	HealthHandler          *handler.HealthHandler
}

// NewContainer connects to Postgres and, when enabled, Redis and the
// spreadsheet ledger, then builds every service on top of them.
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	ledgerClient, err := newLedgerClient(ctx, cfg.Ledger, logger)
	if err != nil {
		_ = db.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}

	snapshots, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		_ = db.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}

	return Build(cfg, logger, db, redisClient, ledgerClient, snapshots), nil
}

// Build wires services and handlers from already opened connections. A nil
// ledger client disables mirroring.
func Build(cfg *config.Config, logger *zap.Logger, db *sqlx.DB, redisClient *redis.Client, ledgerClient service.LedgerClient, snapshots *storage.LocalStorage) *Container {
	validate := validator.New()
	metrics := service.NewMetricsService()

	requests := repository.NewPurchaseRequestRepository(db)
	grants := repository.NewAccessGrantRepository(db)
	materials := repository.NewMaterialRepository(db)
	users := repository.NewUserRepository(db)
	audit := repository.NewAuditRepository(db)
	leases := repository.NewLeaseRepository(redisClient, redisNamespace)

	var tabStore service.TabIDStore
	if redisClient != nil {
		tabStore = repository.NewTabIDRepository(redisClient, redisNamespace)
	}
	tabIDs := service.NewTabIDCache(tabStore, cfg.Ledger.SpreadsheetID, cfg.Ledger.TabCacheTTL, metrics, logger)

	formatter := service.NewLedgerFormatter(service.LedgerLocation(cfg.Ledger.Timezone), cfg.Ledger.IncludeStatus)
	resolver := service.NewLedgerResolver(ledgerClient, cfg.Ledger.KeyPrefix, logger)
	ledger := service.NewLedgerSyncService(ledgerClient, resolver, formatter, leases, tabIDs, metrics, service.LedgerSyncConfig{
		LockTTL:  cfg.Ledger.LockTTL,
		LockWait: cfg.Ledger.LockWait,
	}, logger)

	auth := service.NewAuthService(logger, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})
	requestSvc := service.NewPurchaseRequestService(requests, users, ledger, validate, cfg.Ledger.KeyPrefix, logger)
	accessSvc := service.NewAccessGrantService(grants, materials, audit, metrics, validate, logger)
	processing := service.NewRequestProcessingService(requests, accessSvc, ledger, audit, validate, logger)
	reconciler := service.NewReconciliationService(requests, ledger, leases, audit, metrics, service.ReconciliationConfig{
		BatchLimit: cfg.Reconcile.BatchLimit,
		PageSize:   cfg.Reconcile.PageSize,
		LockTTL:    cfg.Ledger.LockTTL,
	}, logger)
	exporter := service.NewExportService(requests, formatter, export.NewCSVExporter(true), export.NewPDFExporter(cfg.Export.PDFFontPath), logger)
	snapshotSvc := service.NewSnapshotService(exporter, snapshots, storage.NewSignedURLSigner(cfg.JWT.Secret, cfg.Export.LinkTTL), audit, service.SnapshotConfig{
		APIPrefix: cfg.APIPrefix,
		Retention: cfg.Export.Retention,
	}, logger)

	c := &Container{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Redis:      redisClient,
		Audit:      audit,
		Metrics:    metrics,
		Auth:       auth,
		Ledger:     ledger,
		Requests:   requestSvc,
		Access:     accessSvc,
		Processing: processing,
		Reconciler: reconciler,
		Exporter:   exporter,
		Snapshots:  snapshotSvc,

		PurchaseRequestHandler: handler.NewPurchaseRequestHandler(requestSvc),
		AdminHandler:           handler.NewAdminHandler(processing, accessSvc, audit),
		LedgerHandler:          handler.NewLedgerHandler(reconciler, exporter),
		SnapshotHandler:        handler.NewSnapshotHandler(snapshotSvc),
	}
	c.HealthHandler = handler.NewHealthHandler(metrics, ledger)
	c.HealthHandler.AddCheck("database", true, c.pingDatabase)
	if redisClient != nil {
		c.HealthHandler.AddCheck("redis", false, c.pingRedis)
	}
	return c
}

func (c *Container) pingDatabase(ctx context.Context) error {
	if c.DB == nil {
		return errors.New("database not configured")
	}
	return c.DB.PingContext(ctx)
}

func (c *Container) pingRedis(ctx context.Context) error {
	return c.Redis.Ping(ctx).Err()
}

// Close releases the database and Redis connections.
func (c *Container) Close() error {
	var firstErr error
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newLedgerClient(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) (service.LedgerClient, error) {
	if !cfg.Enabled || cfg.SpreadsheetID == "" {
		logger.Warn("ledger sync disabled", zap.Bool("enabled", cfg.Enabled), zap.Bool("spreadsheet_configured", cfg.SpreadsheetID != ""))
		return nil, nil
	}
	tokens, err := sheets.NewTokenSource(ctx, cfg.CredentialsFile, cfg.StaticToken)
	if err != nil {
		return nil, fmt.Errorf("ledger credentials: %w", err)
	}
	client, err := sheets.NewClient(sheets.Options{
		BaseURL:       cfg.BaseURL,
		SpreadsheetID: cfg.SpreadsheetID,
		Tab:           cfg.Tab,
		Columns:       service.NewLedgerFormatter(nil, cfg.IncludeStatus).Columns(),
		TokenSource:   tokens,
		Timeout:       cfg.Timeout,
		Retries:       cfg.Retries,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger client: %w", err)
	}
	logger.Info("ledger sync enabled", zap.String("tab", cfg.Tab))
	return client, nil
}
