package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wuwenbin0122/agent-platform/internal/db"
	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

var databaseURL string

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the agent platform database schema",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection URL")

	rootCmd.AddCommand(upCmd, downCmd, versionCmd, forceCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func withMigrator(fn func(*db.Migrator) error) error {
	url := utils.NormalizeDatabaseURL(databaseURL)
	if url == "" {
		return fmt.Errorf("DATABASE_URL or --database-url is required")
	}

	migrator, err := db.NewMigrator(url)
	if err != nil {
		return err
	}
	defer migrator.Close()

	return fn(migrator)
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *db.Migrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *db.Migrator) error {
			if err := m.Down(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *db.Migrator) error {
			return printVersion(cmd, m)
		})
	},
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Set the schema version without running migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("version must be an integer: %w", err)
		}
		return withMigrator(func(m *db.Migrator) error {
			if err := m.Force(version); err != nil {
				return err
			}
			return printVersion(cmd, m)
		})
	},
}

func printVersion(cmd *cobra.Command, m *db.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("schema version %d (dirty: %t)\n", version, dirty)
	return nil
}
