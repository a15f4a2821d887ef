package system

import (
	"encoding/json"
	"fmt"

	"github.com/julianstephens/habitus/internal/cli"
	"github.com/julianstephens/habitus/internal/storage"
)

type DebugCmd struct {
	DBPath    DebugDBPathCmd    `cmd:"" name:"db-path" help:"Show database location and schema version."`
	DumpHabit DebugDumpHabitCmd `cmd:"" help:"Dump habit data as JSON."`
	DumpUser  DebugDumpUserCmd  `cmd:"" help:"Dump user data as JSON."`
}

func printJSON(ctx *cli.Context, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	ctx.Println(string(jsonBytes))
	return nil
}

type DebugDBPathCmd struct{}

func (cmd *DebugDBPathCmd) Run(ctx *cli.Context) error {
	var version int
	err := ctx.Use(func(s *storage.Store) error {
		var err error
		version, err = s.SchemaVersion(ctx.Ctx)
		return err
	})
	if err != nil {
		return err
	}

	// machine-readable
	return printJSON(ctx, map[string]any{
		"path":           location(ctx),
		"config_dir":     ctx.ConfigDir,
		"schema_version": version,
	})
}

type DebugDumpHabitCmd struct {
	ID int64 `arg:"" help:"ID of the habit to dump."`
}

func (cmd *DebugDumpHabitCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		h, found, err := s.GetHabitByID(ctx.Ctx, cmd.ID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no habit found with id: %d", cmd.ID)
		}
		return printJSON(ctx, h)
	})
}

type DebugDumpUserCmd struct {
	Email string `arg:"" help:"Email of the user to dump."`
}

func (cmd *DebugDumpUserCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		u, found, err := s.GetUserByEmail(ctx.Ctx, cmd.Email)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no user found with email: %s", cmd.Email)
		}
		return printJSON(ctx, u)
	})
}
