package main

import (
	"github.com/spf13/cobra"
	"github.com/suratdinas/backend/internal/database"
	"github.com/suratdinas/backend/internal/reference"
	"github.com/suratdinas/backend/internal/users"
	"go.uber.org/zap"
)

// newMigrateCommand applies the schema and raises the numbering counters to
// the highest numbers already stored, for databases filled by an import.
func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and sync numbering counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, closeRuntime, err := openRuntime()
			if err != nil {
				return err
			}
			defer closeRuntime()
			return database.SyncCounters(rt.db, rt.logger)
		},
	}
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert default lookup rows and the administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, closeRuntime, err := openRuntime()
			if err != nil {
				return err
			}
			defer closeRuntime()
			if err := rt.config.RequireAdminSeed(); err != nil {
				return err
			}

			referenceService, err := reference.NewService(reference.ServiceConfig{Database: rt.db, Logger: rt.logger})
			if err != nil {
				return err
			}
			inserted, err := referenceService.Seed(cmd.Context())
			if err != nil {
				return err
			}

			userService, err := users.NewService(users.ServiceConfig{Database: rt.db, Logger: rt.logger})
			if err != nil {
				return err
			}
			created, err := userService.EnsureAdmin(cmd.Context(), rt.config.AdminUsername, rt.config.AdminPassword)
			if err != nil {
				return err
			}

			rt.logger.Info("seed complete",
				zap.Int64("lookup_rows_inserted", inserted),
				zap.Bool("admin_created", created),
				zap.String("admin_username", rt.config.AdminUsername),
			)
			return nil
		},
	}
}
