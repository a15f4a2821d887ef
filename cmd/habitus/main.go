package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/habitus/internal/cli"
	"github.com/julianstephens/habitus/internal/cli/backups"
	"github.com/julianstephens/habitus/internal/cli/habits"
	"github.com/julianstephens/habitus/internal/cli/scores"
	"github.com/julianstephens/habitus/internal/cli/system"
	"github.com/julianstephens/habitus/internal/cli/users"
	"github.com/julianstephens/habitus/internal/config"
	"github.com/julianstephens/habitus/internal/constants"
	apperrors "github.com/julianstephens/habitus/internal/errors"
	"github.com/julianstephens/habitus/internal/logger"
)

var CLI struct {
	Version         kong.VersionFlag
	ConfigDir       string `name:"config-dir" help:"Directory holding config.toml, the session and the default database." default:"~/.config/habitus" env:"HABITUS_CONFIG_DIR"`
	Database        string `help:"SQLite path, PostgreSQL URL or \"keyring\". For PostgreSQL, credentials must NOT be embedded in the connection string; store them with 'habitus keyring set' instead." env:"HABITUS_DATABASE"`
	Session         string `help:"Session backend: file, keyring or none." env:"HABITUS_SESSION"`
	Debug           bool   `help:"Log debug output to stderr." env:"HABITUS_DEBUG"`
	BackupRetention int    `help:"Number of backups to keep." env:"HABITUS_BACKUP_RETENTION"`

	Init      system.InitCmd    `cmd:"" help:"Initialize habitus storage."`
	Migrate   system.MigrateCmd `cmd:"" help:"Run database migrations."`
	Doctor    system.DoctorCmd  `cmd:"" help:"Run health checks and diagnostics."`
	User      users.UserCmd     `cmd:"" help:"Manage users and the active session."`
	Habit     habits.HabitCmd   `cmd:"" help:"Manage habits."`
	Score     scores.ScoreCmd   `cmd:"" help:"Record and review points."`
	Backup    backups.BackupCmd `cmd:"" help:"Manage database backups."`
	Export    system.ExportCmd  `cmd:"" help:"Export your habits and scores."`
	DebugCmds system.DebugCmd   `cmd:"" name:"debug" help:"Debug commands for troubleshooting."`
	Keyring   struct {
		Set    system.KeyringSetCmd    `cmd:"" help:"Store the PostgreSQL connection string."`
		Get    system.KeyringGetCmd    `cmd:"" help:"Show the stored connection string."`
		Delete system.KeyringDeleteCmd `cmd:"" help:"Remove the stored connection string."`
		Status system.KeyringStatusCmd `cmd:"" help:"Check keyring availability."`
	} `cmd:"" help:"Manage credentials in the OS keyring."`
}

func main() {
	// .env values feed the env tags below, so load them first.
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, apperrors.Format(err))
		os.Exit(1)
	}

	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit tracker with a points ledger"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": constants.Version},
	)

	// Interrupts cancel in-flight queries and roll back open transactions.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	appCtx, err := setup(ctx)
	if err != nil {
		stop()
		apperrors.Fatal(err)
	}

	err = kctx.Run(appCtx)
	if cerr := appCtx.Close(); cerr != nil {
		logger.Warn("Failed to close change journal", "error", cerr)
	}
	stop()
	apperrors.Fatal(err)
}

func setup(ctx context.Context) (*cli.Context, error) {
	dir, err := config.ExpandHome(CLI.ConfigDir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir, filepath.Join(dir, constants.DefaultConfigFile))
	if err != nil {
		return nil, err
	}
	cfg, err = cfg.Apply(config.Overrides{
		Database:        CLI.Database,
		SessionBackend:  CLI.Session,
		Debug:           CLI.Debug,
		BackupRetention: CLI.BackupRetention,
	})
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{Debug: cfg.Debug, ConfigDir: dir}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Debug("Configuration loaded", "config_dir", dir, "postgres", cfg.IsPostgres())

	return cli.NewContext(ctx, cfg, dir)
}
