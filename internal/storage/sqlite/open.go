// Package sqlite opens the local habitus database.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/julianstephens/habitus/internal/backup"
	"github.com/julianstephens/habitus/internal/changes"
	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/dialect"
	"github.com/julianstephens/habitus/internal/lockfile"
	"github.com/julianstephens/habitus/internal/logger"
	"github.com/julianstephens/habitus/internal/migration"
	"github.com/julianstephens/habitus/internal/schema"
	"github.com/julianstephens/habitus/internal/session"
	"github.com/julianstephens/habitus/internal/storage"
)

// Options configures Open.
type Options struct {
	Path            string
	Sessions        session.Store
	Sink            changes.Sink
	BackupRetention int
	// SkipBackup disables the backup taken before pending migrations.
	SkipBackup bool
	// Progress receives migration messages; nil discards them.
	Progress func(string)
	Clock    func() time.Time
}

var pragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
	"PRAGMA foreign_keys = ON",
}

// dsn makes transactions take the write lock at BEGIN, so concurrent handles
// wait on busy_timeout instead of failing when a read upgrades to a write.
func dsn(path string) string {
	return path + "?_txlock=immediate"
}

// migrateMu serializes opens within this process. The lockfile does the
// same across processes.
var migrateMu sync.Mutex

// Open creates the database directory if needed, backs up a store with
// pending migrations, migrates it and returns the record store. The process
// lock is held only while migrating; concurrent handles rely on SQLite's own
// locking.
func Open(ctx context.Context, opts Options) (_ *storage.Store, err error) {
	if opts.Path == "" {
		return nil, errors.New("database path is required")
	}
	dir := filepath.Dir(opts.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", dsn(opts.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps per-connection pragmas in effect for every query.
	db.SetMaxOpenConns(1)
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	d := dialect.SQLite{}
	if err := migrate(ctx, migration.NewEngine(db, d), d, db, opts); err != nil {
		return nil, err
	}

	var storeOpts []storage.Option
	if opts.Sessions != nil {
		storeOpts = append(storeOpts, storage.WithSessionStore(opts.Sessions))
	}
	if opts.Sink != nil {
		storeOpts = append(storeOpts, storage.WithSink(opts.Sink))
	}
	if opts.Clock != nil {
		storeOpts = append(storeOpts, storage.WithClock(opts.Clock))
	}
	return storage.New(db, d, storeOpts...), nil
}

// migrate brings the schema to the latest version under the process lock.
func migrate(ctx context.Context, engine *migration.Engine, d dialect.Dialect, db *sqlx.DB, opts Options) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	lock, err := lockfile.Acquire(filepath.Join(filepath.Dir(opts.Path), constants.LockfileName))
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			logger.Warn("Failed to release lockfile", "error", rerr)
		}
	}()

	if !opts.SkipBackup {
		if err := backupBeforeMigrate(ctx, engine, d, db, opts); err != nil {
			return err
		}
	}
	if _, err := engine.Migrate(ctx, opts.Progress); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// backupBeforeMigrate snapshots an existing store that is behind the latest
// schema version. Fresh stores have nothing to lose.
func backupBeforeMigrate(ctx context.Context, engine *migration.Engine, d dialect.Dialect, db *sqlx.DB, opts Options) error {
	current, err := engine.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current >= engine.Latest() {
		return nil
	}
	exists, err := d.TableExists(ctx, db, schema.TableHabits)
	if err != nil {
		return fmt.Errorf("failed to inspect database: %w", err)
	}
	if !exists {
		return nil
	}

	mgr := backup.NewManager(opts.Path, backup.WithRetention(opts.BackupRetention))
	info, err := mgr.Create(ctx)
	if err != nil {
		return fmt.Errorf("failed to backup database before migration: %w", err)
	}
	logger.Info("Backed up database before migration", "path", info.Path, "from_version", current)
	return nil
}

// Status reports pending migrations without applying them. A missing
// database file is reported as a bootstrap.
func Status(ctx context.Context, path string) (migration.Status, error) {
	latest := schema.Default().Latest()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return migration.Status{Latest: latest, Bootstrap: true}, nil
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return migration.Status{}, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	return migration.NewEngine(db, dialect.SQLite{}).Status(ctx)
}

// Factory opens a fresh handle per Acquire.
func Factory(opts Options) *storage.Factory {
	return storage.NewFactory(func(ctx context.Context) (*storage.Store, error) {
		return Open(ctx, opts)
	})
}
