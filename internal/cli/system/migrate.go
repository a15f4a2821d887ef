package system

import (
	"fmt"

	"github.com/julianstephens/habitus/internal/cli"
	"github.com/julianstephens/habitus/internal/migration"
	"github.com/julianstephens/habitus/internal/storage"
	"github.com/julianstephens/habitus/internal/storage/postgres"
	"github.com/julianstephens/habitus/internal/storage/sqlite"
)

type MigrateCmd struct {
	DryRun bool `help:"List pending migration steps without applying them."`
}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	if c.DryRun {
		return c.plan(ctx)
	}

	// Opening the store applies pending migrations.
	var version int
	err := ctx.Factory(func(msg string) { ctx.Println(msg) }).Use(ctx.Ctx, func(s *storage.Store) error {
		var err error
		version, err = s.SchemaVersion(ctx.Ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	ctx.Success("Database schema is at version %d", version)
	return nil
}

func (c *MigrateCmd) plan(ctx *cli.Context) error {
	var (
		st  migration.Status
		err error
	)
	if ctx.Config.IsPostgres() {
		st, err = postgres.Status(ctx.Ctx, postgres.Options{ConnString: ctx.Config.ConnString()})
	} else {
		st, err = sqlite.Status(ctx.Ctx, ctx.Config.Database)
	}
	if err != nil {
		return err
	}

	switch {
	case st.Bootstrap:
		ctx.Printf("Empty store: schema version %d would be created directly.\n", st.Latest)
	case st.UpToDate():
		ctx.Printf("No migrations to apply. Database is up to date (version %d).\n", st.Current)
	default:
		ctx.Printf("Current schema version: %d\n", st.Current)
		ctx.Printf("Target schema version: %d\n\n", st.Latest)
		for _, step := range st.Steps {
			ctx.Printf("  %s\n", step)
		}
		ctx.Printf("\n%d step(s) pending. Run 'habitus migrate' to apply them.\n", len(st.Steps))
	}
	return nil
}
