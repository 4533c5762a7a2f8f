package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/money-diary/internal/domain/budget"
	budgethandler "github.com/FACorreiaa/money-diary/internal/domain/budget/handler"
	"github.com/FACorreiaa/money-diary/internal/domain/categorization"
	categorizationhandler "github.com/FACorreiaa/money-diary/internal/domain/categorization/handler"
	importhandler "github.com/FACorreiaa/money-diary/internal/domain/import/handler"
	"github.com/FACorreiaa/money-diary/internal/domain/import/normalizer"
	"github.com/FACorreiaa/money-diary/internal/domain/import/preview"
	importrepo "github.com/FACorreiaa/money-diary/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/money-diary/internal/domain/import/service"
	"github.com/FACorreiaa/money-diary/internal/domain/ledger"
	"github.com/FACorreiaa/money-diary/internal/domain/profile"
	profilehandler "github.com/FACorreiaa/money-diary/internal/domain/profile/handler"

	"github.com/FACorreiaa/money-diary/pkg/config"
	"github.com/FACorreiaa/money-diary/pkg/cron"
	"github.com/FACorreiaa/money-diary/pkg/db"
	"github.com/FACorreiaa/money-diary/pkg/interceptors"
	"github.com/FACorreiaa/money-diary/pkg/metrics"
	"github.com/FACorreiaa/money-diary/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Repositories
	Accounts      *ledger.Repository
	ProfileRepo   *profile.PostgresRepository
	PatternRepo   *categorization.PostgresRepository
	IgnoreStore   *normalizer.IgnoreStore
	ImportRepo    *importrepo.Repository
	BudgetRepo    *budget.Repository
	PreviewStore  preview.Store
	UploadArchive storage.Storage

	// Services
	ProfileService        *profile.Service
	CategorizationService *categorization.Service
	ImportService         *importservice.Service
	BudgetService         *budget.Service
	RateLimiter           *interceptors.RateLimiter
	Scheduler             *cron.Scheduler

	// Handlers
	ProfileHandler *profilehandler.ProfileHandler
	PatternHandler *categorizationhandler.PatternHandler
	ImportHandler  *importhandler.ImportHandler
	BudgetHandler  *budgethandler.BudgetHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        int32(d.Config.Database.MaxConns),
		MinConns:        int32(d.Config.Database.MinConns),
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	pool := d.DB.Pool
	d.Accounts = ledger.NewRepository(pool)
	d.ProfileRepo = profile.NewPostgresRepository(pool)
	d.PatternRepo = categorization.NewPostgresRepository(pool)
	d.IgnoreStore = normalizer.NewIgnoreStore(pool)
	d.ImportRepo = importrepo.NewRepository(pool)
	d.BudgetRepo = budget.NewRepository(pool)

	switch d.Config.Import.PreviewStore {
	case "postgres":
		d.PreviewStore = preview.NewPostgresStore(pool)
	default:
		d.PreviewStore = preview.NewMemoryStore()
	}

	if d.Config.Import.ArchiveUploads {
		archive, err := storage.NewLocalStorage(d.Config.Import.ArchivePath)
		if err != nil {
			return fmt.Errorf("failed to init upload archive: %w", err)
		}
		d.UploadArchive = archive
	}

	d.Logger.Info("repositories initialized",
		"preview_store", d.Config.Import.PreviewStore,
		"archive_uploads", d.UploadArchive != nil,
	)
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	if len(d.Config.Auth.JWTSecret) == 0 {
		return fmt.Errorf("jwt secret is required")
	}

	d.ProfileService = profile.NewService(d.ProfileRepo, d.Accounts, d.Logger)

	miner := categorization.NewMiner(d.Config.Import.PrefixMinLength, d.Config.Import.PrefixMaxLength)
	d.CategorizationService = categorization.NewService(d.PatternRepo, d.IgnoreStore, miner, d.Metrics, d.Logger)

	d.ImportService = importservice.NewService(importservice.Deps{
		Profiles:   d.ProfileService,
		Accounts:   d.Accounts,
		Ignores:    d.IgnoreStore,
		Classifier: d.CategorizationService,
		Imports:    d.ImportRepo,
		Ledger:     ledgerIn,
		Previews:   d.PreviewStore,
	}, importservice.Options{
		PreviewTTL:        d.Config.Import.PreviewTTL,
		ConfirmTimeout:    d.Config.Import.ConfirmTimeout,
		HeaderSearchDepth: d.Config.Import.HeaderSearchDepth,
		JaccardThreshold:  d.Config.Import.JaccardThreshold,
	}, d.Metrics, d.Logger)
	if d.UploadArchive != nil {
		d.ImportService.WithArchive(d.UploadArchive)
	}

	d.BudgetService = budget.NewService(d.BudgetRepo, d.Logger)

	d.RateLimiter = interceptors.NewRateLimiter(d.Config.Server.RateLimitPerSecond, d.Config.Server.RateLimitBurst, d.Logger)

	if d.Config.Cron.Enabled {
		d.Scheduler = cron.NewScheduler(cron.Jobs{
			Previews: d.ImportService,
			Imports:  d.ImportRepo,
			Limiter:  d.RateLimiter,
		}, d.Config.Cron.SweepSchedule, d.Config.Cron.StaleImportAge, d.Logger)
	}

	d.Logger.Info("services initialized")
	return nil
}

// ledgerIn binds the ledger repository to the querier of a commit unit.
func ledgerIn(q db.Querier) importservice.Ledger {
	return ledger.NewRepository(q)
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.ProfileHandler = profilehandler.NewProfileHandler(d.ProfileService, d.Logger)
	d.PatternHandler = categorizationhandler.NewPatternHandler(d.CategorizationService, d.Logger)
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Config.Server.MaxUploadBytes, d.Logger)
	d.BudgetHandler = budgethandler.NewBudgetHandler(d.BudgetService, d.Logger)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
