/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/recipesnap/apiserver/config"
	"github.com/recipesnap/apiserver/internal/db"
	"github.com/spf13/cobra"
)

var (
	migrationsDir string
	downSteps     int
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Runs the SQL migrations against postgres. SQLite databases are
migrated automatically when the server opens them.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := migrationSettings()
		if err != nil {
			return err
		}
		return db.MigrateUp(settings, migrationsDir)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := migrationSettings()
		if err != nil {
			return err
		}
		return db.MigrateDown(settings, migrationsDir, downSteps)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)

	migrateCmd.PersistentFlags().StringVar(&migrationsDir, "dir", db.DefaultMigrationsDir, "migrations directory")
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back; 0 rolls back all")
}

func migrationSettings() (db.Settings, error) {
	cfg := config.LoadConfig()
	settings, err := db.ResolveSettings(cfg.Database, cfg.Env)
	if err != nil {
		return db.Settings{}, fmt.Errorf("resolve database settings: %w", err)
	}
	return settings, nil
}
