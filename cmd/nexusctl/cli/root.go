// Package cli implements the nexusctl operator commands.
package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/greengold/nexus/internal/app"
	"github.com/greengold/nexus/internal/platform/db"
)

// env holds the lazily opened resources shared by subcommands.
type env struct {
	cfg    *app.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func (e *env) load() error {
	if e.cfg != nil {
		return nil
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.logger = app.NewLogger(cfg).With(slog.String("component", "nexusctl"))
	return nil
}

func (e *env) db(ctx context.Context) (*pgxpool.Pool, error) {
	if err := e.load(); err != nil {
		return nil, err
	}
	if e.pool != nil {
		return e.pool, nil
	}
	pool, err := db.New(ctx, db.PoolConfig{DSN: e.cfg.PGDSN, MaxConns: 4})
	if err != nil {
		return nil, err
	}
	e.pool = pool
	return pool, nil
}

func (e *env) redisOpts() (asynq.RedisClientOpt, error) {
	if err := e.load(); err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{Addr: e.cfg.RedisAddr, Password: e.cfg.RedisPassword}, nil
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
	}
}

var errMissingFlag = errors.New("missing required flag")

// NewRootCommand assembles the nexusctl command tree.
func NewRootCommand() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "nexusctl",
		Short:         "Operator tooling for the Green Gold Nexus back office",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			e.close()
		},
	}
	root.AddCommand(
		newMigrateCommand(e),
		newSeedCommand(e),
		newJobsCommand(e),
		newExportCommand(e),
	)
	return root
}
