// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/truthtribunal/tribunal/internal/store"
)

// Migrator is the schema migration surface used by the migrate commands.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// MigratorFactory opens a Migrator for a database URL.
type MigratorFactory func(databaseURL string) (Migrator, error)

func defaultMigratorFactory(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}

var migrateFlagKeys = map[string]string{"database-url": "database.url"}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return newMigrateCmdWithFactory(opts, defaultMigratorFactory)
}

func newMigrateCmdWithFactory(opts *rootOptions, factory MigratorFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long:  `Apply, roll back and inspect the account schema migrations.`,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (default $DATABASE_URL)")

	// withMigrator opens the migrator for the resolved database URL.
	withMigrator := func(run func(cmd *cobra.Command, args []string, m Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, migrateFlagKeys)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("database.url is required (set --database-url or DATABASE_URL)")
			}
			m, err := factory(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			return run(cmd, args, m)
		}
	}

	var downSteps int
	var downAll bool

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, _ []string, m Migrator) error {
			pending, err := m.PendingMigrations()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				cmd.Println("No pending migrations")
				return nil
			}
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Printf("Applied %d migration(s)\n", len(pending))
			return nil
		}),
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the last --steps migrations (default 1). --all rolls back
every migration and drops all account data.`,
		Args: cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, _ []string, m Migrator) error {
			if downAll {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("Rolled back all migrations")
				return nil
			}
			if downSteps < 1 {
				return oops.Code("INVALID_ARGUMENT").With("steps", downSteps).Errorf("--steps must be at least 1")
			}
			if err := m.Steps(-downSteps); err != nil {
				return err
			}
			cmd.Printf("Rolled back %d migration(s)\n", downSteps)
			return nil
		}),
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")
	down.Flags().BoolVar(&downAll, "all", false, "roll back every migration")
	down.MarkFlagsMutuallyExclusive("steps", "all")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, _ []string, m Migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			pending, err := m.PendingMigrations()
			if err != nil {
				return err
			}
			state := "clean"
			if dirty {
				state = "dirty"
			}
			cmd.Printf("Version: %d (%s)\n", version, state)
			if len(pending) == 0 {
				cmd.Println("Pending: none")
				return nil
			}
			cmd.Println("Pending:")
			for _, v := range pending {
				name, err := store.MigrationName(v)
				if err != nil {
					return err
				}
				cmd.Printf("  %s\n", name)
			}
			return nil
		}),
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Record VERSION as the applied schema version and clear the dirty flag.
Use only after repairing a migration that failed partway.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, args []string, m Migrator) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_ARGUMENT").With("version", args[0]).Wrapf(err, "version must be an integer")
			}
			if err := m.Force(version); err != nil {
				return err
			}
			cmd.Printf("Forced version %d\n", version)
			return nil
		}),
	}

	cmd.AddCommand(up, down, status, force)
	return cmd
}
