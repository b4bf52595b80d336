package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database schema versions",
	Long:  `Apply, roll back or inspect the goose migrations under db/migrations.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Usage()
	},
}

func init() {
	migrateCmd.PersistentFlags().String("dir", "db/migrations", "Migrations directory")

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate(cmd, goose.Up) },
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate(cmd, goose.Down) },
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print migration status",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate(cmd, goose.Status) },
	})
}

func runMigrate(cmd *cobra.Command, op func(*sql.DB, string, ...goose.OptionsFunc) error) error {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return err
	}
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		dir = v
	}

	pool, err := pgxpool.New(context.Background(), resolveDSN())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return op(db, dir)
}
