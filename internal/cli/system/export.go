package system

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/julianstephens/habitus/internal/cli"
	"github.com/julianstephens/habitus/internal/export"
	"github.com/julianstephens/habitus/internal/storage"
)

type ExportCmd struct {
	Format string `short:"f" help:"Output format (yaml or json)." default:"yaml" enum:"yaml,yml,json"`
	Output string `short:"o" help:"Write to this file instead of stdout." type:"path"`
}

func (c *ExportCmd) Run(ctx *cli.Context) error {
	format, err := export.ParseFormat(c.Format)
	if err != nil {
		return err
	}

	var doc export.Document
	err = ctx.Use(func(s *storage.Store) error {
		var err error
		doc, err = export.Collect(ctx.Ctx, s, time.Now())
		return err
	})
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	var w io.Writer = ctx.Out
	if c.Output != "" {
		f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", c.Output, err)
		}
		defer f.Close()
		w = f
	}
	if err := export.Write(w, format, doc); err != nil {
		return err
	}
	if c.Output != "" {
		ctx.Success("Exported %d habit(s) and %d score(s) to %s", len(doc.Habits), len(doc.Scores), c.Output)
	}
	return nil
}
