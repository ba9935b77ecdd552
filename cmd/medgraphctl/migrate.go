package main

import (
	"errors"
	"fmt"

	"github.com/Harshitk-cp/medgraph/internal/config"
	"github.com/Harshitk-cp/medgraph/internal/store"
	"github.com/spf13/cobra"
)

var (
	migrationsPath string
	downSteps      int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDatabaseURL(); err != nil {
			return err
		}
		if err := store.MigrateUp(databaseURL, migrationsDir()); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations (all of them unless --steps is set)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDatabaseURL(); err != nil {
			return err
		}
		if err := store.MigrateDown(databaseURL, migrationsDir(), downSteps); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDatabaseURL(); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrationsPath, "path", "", "Migrations directory (defaults to MIGRATIONS_PATH)")
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 0, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func migrationsDir() string {
	if migrationsPath != "" {
		return migrationsPath
	}
	return config.MigrationsPath()
}

func requireDatabaseURL() error {
	if databaseURL == "" {
		return errors.New("no database: set DATABASE_URL or pass --database-url")
	}
	return nil
}

func printVersion(cmd *cobra.Command) error {
	v, dirty, err := store.MigrationVersion(databaseURL, migrationsDir())
	if err != nil {
		return err
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d%s\n", v, suffix)
	return err
}
