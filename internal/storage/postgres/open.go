// Package postgres opens a server-backed habitus store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	pq "github.com/lib/pq"

	"github.com/julianstephens/habitus/internal/changes"
	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/dialect"
	"github.com/julianstephens/habitus/internal/keyring"
	"github.com/julianstephens/habitus/internal/logger"
	"github.com/julianstephens/habitus/internal/migration"
	"github.com/julianstephens/habitus/internal/session"
	"github.com/julianstephens/habitus/internal/storage"
)

var (
	ErrInvalidConnectionString = errors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = errors.New("connection string must not contain a password")
)

// migrationLockKey serializes migrations across processes sharing a server.
const migrationLockKey int64 = 0x68616269 // "habi"

// Options configures Open.
type Options struct {
	// ConnString must not embed a password. When empty, the connection
	// string stored in the OS keyring is used instead.
	ConnString string
	Sessions   session.Store
	Sink       changes.Sink
	Progress   func(string)
	Clock      func() time.Time
}

// IsConnString reports whether s looks like a Postgres URL rather than a file path.
func IsConnString(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

// resolveConnString picks the configured string or the keyring entry.
func resolveConnString(opts Options) (string, error) {
	if opts.ConnString != "" {
		if _, err := ValidateConnString(opts.ConnString); err != nil {
			return "", err
		}
		return opts.ConnString, nil
	}
	connStr, err := keyring.GetConnectionString()
	if err != nil {
		return "", fmt.Errorf("no connection string configured: %w", err)
	}
	if strings.TrimSpace(connStr) == "" {
		return "", fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}
	return connStr, nil
}

// ensureSearchPath scopes the connection to the habitus schema unless the
// caller chose a search_path.
func ensureSearchPath(connStr string) string {
	if IsConnString(connStr) {
		u, err := url.Parse(connStr)
		if err != nil {
			logger.Warn("Failed to parse Postgres connection string", "error", err)
			return connStr
		}
		q := u.Query()
		if q.Get("search_path") == "" {
			q.Set("search_path", constants.AppName)
			u.RawQuery = q.Encode()
		}
		return u.String()
	}
	if !hasParam(connStr, "search_path") {
		return strings.TrimSpace(connStr) + " search_path=" + constants.AppName
	}
	return connStr
}

// hasParam reports whether a DSN-style string carries key (case-insensitive).
func hasParam(connStr, key string) bool {
	for _, part := range strings.Fields(connStr) {
		k, _, ok := strings.Cut(part, "=")
		if ok && strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// hasSSLMode checks both URL and DSN forms for an sslmode parameter.
func hasSSLMode(connStr string) bool {
	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" {
		for key := range u.Query() {
			if strings.EqualFold(key, "sslmode") {
				return true
			}
		}
	}
	return hasParam(connStr, "sslmode")
}

// ValidateConnString checks that connStr is a PostgreSQL URL or DSN and that
// it carries no password.
func ValidateConnString(connStr string) (bool, error) {
	if strings.TrimSpace(connStr) == "" {
		return false, fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}
	if _, err := pq.NewConnector(connStr); err != nil {
		return false, fmt.Errorf("%w: invalid connection string format: %v", ErrInvalidConnectionString, err)
	}

	if IsConnString(connStr) {
		u, err := url.Parse(connStr)
		if err != nil {
			return false, fmt.Errorf("%w: failed to parse connection URL: %v", ErrInvalidConnectionString, err)
		}
		if _, isSet := u.User.Password(); isSet {
			return false, ErrEmbeddedCredentials
		}
		if u.Host == "" && u.User == nil && (u.Path == "" || u.Path == "/") {
			return false, fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
		}
		return true, nil
	}
	if hasParam(connStr, "password") {
		return false, ErrEmbeddedCredentials
	}
	return true, nil
}

// connect opens a pool, verifies the server is reachable and creates the
// habitus schema.
func connect(ctx context.Context, opts Options) (_ *sqlx.DB, err error) {
	connStr, err := resolveConnString(opts)
	if err != nil {
		return nil, err
	}
	connStr = ensureSearchPath(connStr)

	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasSSLMode(connStr) {
			return nil, fmt.Errorf("failed to connect to database: %w (hint: try adding ?sslmode=disable to your connection string)", err)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+dialect.QuoteIdent(constants.AppName)); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

// Open connects, creates the habitus schema, migrates it under an advisory
// lock and returns the record store.
func Open(ctx context.Context, opts Options) (_ *storage.Store, err error) {
	db, err := connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	if err := migrateLocked(ctx, db, opts.Progress); err != nil {
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
	return storage.New(db, dialect.Postgres{}, storeOpts...), nil
}

// Status reports pending migrations without applying them.
func Status(ctx context.Context, opts Options) (migration.Status, error) {
	db, err := connect(ctx, opts)
	if err != nil {
		return migration.Status{}, err
	}
	defer db.Close()
	return migration.NewEngine(db, dialect.Postgres{}).Status(ctx)
}

func migrateLocked(ctx context.Context, db *sqlx.DB, progress func(string)) (err error) {
	conn, err := db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		if _, uerr := conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey); uerr != nil {
			logger.Warn("Failed to release migration lock", "error", uerr)
		}
	}()

	if _, err := migration.NewEngine(db, dialect.Postgres{}).Migrate(ctx, progress); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Factory opens a fresh handle per Acquire.
func Factory(opts Options) *storage.Factory {
	return storage.NewFactory(func(ctx context.Context) (*storage.Store, error) {
		return Open(ctx, opts)
	})
}
