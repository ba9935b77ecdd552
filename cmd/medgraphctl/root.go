package main

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/medgraph/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	databaseURL string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "medgraphctl",
	Short: "Operate a medgraph deployment",
	Long: `medgraphctl inspects and maintains the computed relation cache and the
database schema behind a medgraph server.

Configuration is read from the same environment (and MEDGRAPH_ENV file)
as the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return err
		}
		if databaseURL == "" {
			databaseURL = config.DatabaseURL()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func connect(ctx context.Context) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("no database: set DATABASE_URL or pass --database-url")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
