package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/money-diary/internal/domain/admin"
	"github.com/FACorreiaa/money-diary/pkg/config"
	"github.com/FACorreiaa/money-diary/pkg/db"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

// usageArgs marks positional argument errors as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

type migrator interface {
	MigrateUp(ctx context.Context) error
	MigrateDown(ctx context.Context) error
	MigrationStatuses(ctx context.Context) ([]db.MigrationStatus, error)
}

type adminStore interface {
	Seed(ctx context.Context, userID uuid.UUID, currency string) (*admin.SeedResult, error)
	Drifts(ctx context.Context, userID uuid.UUID) ([]admin.Drift, error)
	Reconcile(ctx context.Context, drifts []admin.Drift) error
}

// conn is an open database session for one command.
type conn struct {
	migrator migrator
	store    adminStore
	close    func()
}

// env holds what commands need from the outside world.
type env struct {
	loadConfig func() (*config.Config, error)
	connect    func(cfg *config.Config, logger *slog.Logger) (*conn, error)
	logger     *slog.Logger
}

func defaultEnv() *env {
	return &env{
		loadConfig: config.Load,
		connect: func(cfg *config.Config, logger *slog.Logger) (*conn, error) {
			database, err := db.New(db.Config{
				DSN:             cfg.Database.DSN(),
				MaxConns:        2,
				MaxConnLifetime: 5 * time.Minute,
			}, logger)
			if err != nil {
				return nil, err
			}
			return &conn{
				migrator: database,
				store:    admin.NewRepository(database.Pool),
				close:    database.Close,
			}, nil
		},
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
}

func (e *env) config() (*config.Config, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, usageError(fmt.Errorf("invalid configuration: %w", err))
	}
	return cfg, nil
}

func (e *env) open() (*conn, *config.Config, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, nil, err
	}
	c, err := e.connect(cfg, e.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return c, cfg, nil
}

func newRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "moneydiary-admin",
		Short: "MoneyDiary maintenance commands",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			if len(args) > 0 {
				return usageError(fmt.Errorf("unknown command %q", args[0]))
			}
			return usageError(errors.New("a command is required"))
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	root.AddCommand(
		newMigrateCommand(e),
		newSeedCommand(e),
		newReconcileCommand(e),
		newTokenCommand(e),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(defaultEnv()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode(err))
}
