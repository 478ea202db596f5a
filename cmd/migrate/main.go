package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"ms-qrinventory/internal/config"
	"ms-qrinventory/internal/database/migrations"
	"ms-qrinventory/internal/db"
	"ms-qrinventory/internal/logger"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(logger.Options{Service: "qr-migrate", Level: logger.ParseLevel(cfg.Log.Level), Color: cfg.Log.Color})
	if err != nil {
		log = logger.NewLogger()
	}
	defer log.Close()
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	var dir string
	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the QR inventory database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dir, "dir", cfg.Migrations.Dir, "directory holding the SQL migrations")

	withRunner := func(fn func(r *migrations.Runner) error) error {
		runner := migrations.NewRunner(cfg.Database.DSN(), migrations.Options{Dir: dir}, log)
		defer runner.Close()
		return fn(runner)
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRunner(func(r *migrations.Runner) error { return r.Up() })
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRunner(func(r *migrations.Runner) error { return r.Down() })
			},
		},
		&cobra.Command{
			Use:   "steps [n]",
			Short: "Move n migrations forward, or back when n is negative",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("steps must be an integer: %w", err)
				}
				return withRunner(func(r *migrations.Runner) error { return r.Steps(n) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRunner(func(r *migrations.Runner) error {
					version, dirty, err := r.Version()
					if err != nil {
						return err
					}
					fmt.Printf("version %d (dirty: %t)\n", version, dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "bootstrap",
			Short: "Create tables straight from the models, for throwaway databases",
			RunE: func(cmd *cobra.Command, args []string) error {
				sqldb, err := sql.Open("postgres", cfg.Database.DSN())
				if err != nil {
					return err
				}
				store := db.New(bun.NewDB(sqldb, pgdialect.New()))
				defer store.Close()
				return store.CreateSchema(context.Background())
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error("MIGRATE", err.Error())
		os.Exit(1)
	}
	log.Info("MIGRATE", "Done")
}
