package system

import (
	"errors"
	"fmt"

	"github.com/julianstephens/habitus/internal/backup"
	"github.com/julianstephens/habitus/internal/cli"
	"github.com/julianstephens/habitus/internal/storage"
)

type DoctorCmd struct{}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	ctx.Println("Running diagnostics...")
	ctx.Println()

	var checks []storage.Check
	err := ctx.Use(func(s *storage.Store) error {
		checks = s.Doctor(ctx.Ctx)
		return nil
	})
	if err != nil {
		ctx.Failure("Database reachable: FAIL")
		ctx.Printf("   Error: %v\n", err)
		ctx.Skipped("Remaining checks: SKIPPED (database not reachable)")
		return errors.New("diagnostics failed")
	}

	hasError := false
	for _, c := range checks {
		switch {
		case c.OK:
			ctx.Success("%s: OK", c.Name)
		case c.Severity == storage.SeverityWarning:
			ctx.Warning("%s: WARNING", c.Name)
			ctx.Printf("   %s\n", c.Detail)
		default:
			ctx.Failure("%s: FAIL", c.Name)
			ctx.Printf("   Error: %s\n", c.Detail)
			hasError = true
		}
	}

	if path, err := ctx.DBPath(); err != nil {
		ctx.Skipped("Backups present: SKIPPED (server-backed store)")
	} else if err := checkBackupsPresent(path); err != nil {
		ctx.Warning("Backups present: WARNING")
		ctx.Printf("   %v\n", err)
	} else {
		ctx.Success("Backups present: OK")
	}

	ctx.Println()
	if hasError {
		return errors.New("diagnostics failed")
	}
	ctx.Println("All diagnostics passed!")
	return nil
}

func checkBackupsPresent(dbPath string) error {
	mgr := backup.NewManager(dbPath)
	backups, err := mgr.List()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		return fmt.Errorf("no backups found in %s; run 'habitus backup create'", mgr.Dir())
	}
	return nil
}
