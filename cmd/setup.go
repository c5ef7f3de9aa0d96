package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/topmix/internal/shared"
	"github.com/desertthunder/topmix/internal/ui"
)

// Setup writes config.toml from the embedded template when missing, then creates and migrates the database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			return err
		}
		r.writePlain("%s\n", ui.OK("Config written to "+r.configPath))
	}

	if err := r.configure(cmd); err != nil {
		return err
	}

	if cmd.Bool("rollback") {
		return r.rollback()
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	applied, err := shared.AppliedMigrations(db)
	if err != nil {
		return err
	}
	r.writePlain("%s\n", ui.OK(fmt.Sprintf("Database ready at %s (%d migrations applied)", r.config.Database.Path, len(applied))))

	if err := r.config.Validate(); err != nil {
		r.writePlain("%s\n", ui.Warn(err.Error()))
		r.writePlain("%s\n", ui.Help("Set client_id and client_secret in "+r.configPath+" or SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET."))
	}
	return nil
}

// rollback reverts the newest applied migration without applying pending ones.
func (r *Runner) rollback() error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return err
	}
	applied, err := shared.AppliedMigrations(db)
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", ui.OK(fmt.Sprintf("Rolled back one migration (%d remaining)", len(applied))))
}
