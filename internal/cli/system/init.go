package system

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/habitus/internal/cli"
	"github.com/julianstephens/habitus/internal/config"
	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/storage"
)

type InitCmd struct {
	Force bool `help:"Delete an existing SQLite database before initialization."`
	Yes   bool `short:"y" help:"Skip the confirmation for --force."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if c.Force {
		if err := c.reset(ctx); err != nil {
			return err
		}
	}

	cfgPath := filepath.Join(ctx.ConfigDir, constants.DefaultConfigFile)
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		if err := config.Save(cfgPath, ctx.Config); err != nil {
			return err
		}
		ctx.Printf("Wrote config: %s\n", cfgPath)
	}

	var version int
	err := ctx.Factory(func(msg string) { ctx.Println(msg) }).Use(ctx.Ctx, func(s *storage.Store) error {
		var err error
		version, err = s.SchemaVersion(ctx.Ctx)
		return err
	})
	if err != nil {
		return err
	}
	ctx.Success("Initialized habitus storage at: %s (schema version %d)", location(ctx), version)
	return nil
}

func (c *InitCmd) reset(ctx *cli.Context) error {
	path, err := ctx.DBPath()
	if err != nil {
		return fmt.Errorf("--force: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to access existing database: %w", err)
	}
	if err := ctx.Confirmed(fmt.Sprintf("Delete %s and every habit and score in it?", path), c.Yes); err != nil {
		return err
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete existing database: %w", err)
		}
	}
	ctx.Printf("Deleted existing database at: %s\n", path)
	return nil
}

// location describes the configured database without exposing credentials.
func location(ctx *cli.Context) string {
	if ctx.Config.Database == constants.DatabaseFromKeyring {
		return "PostgreSQL (keyring connection string)"
	}
	if ctx.Config.IsPostgres() {
		return maskPassword(ctx.Config.Database)
	}
	return ctx.Config.Database
}
