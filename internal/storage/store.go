// Package storage is the record store for users, habits and scores. Every
// operation described as scoped resolves the acting user exactly once.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/habitus/internal/changes"
	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/dialect"
	"github.com/julianstephens/habitus/internal/logger"
	"github.com/julianstephens/habitus/internal/session"
)

// Store wraps an already migrated database.
type Store struct {
	db       *sqlx.DB
	dialect  dialect.Dialect
	sessions session.Store
	sink     changes.Sink
	now      func() time.Time
	hooks    storeHooks
}

type storeHooks struct {
	exec    func(ctx context.Context, e sqlx.ExecerContext, query string, args ...any) (sql.Result, error)
	beginTx func(ctx context.Context, db *sqlx.DB) (*sqlx.Tx, error)
	commit  func(tx *sqlx.Tx) error
}

type Option func(*Store)

// WithSessionStore sets where the persisted session is read from.
func WithSessionStore(st session.Store) Option {
	return func(s *Store) { s.sessions = st }
}

// WithSink sets where committed changes are published.
func WithSink(sink changes.Sink) Option {
	return func(s *Store) { s.sink = sink }
}

// WithClock overrides the clock used for created_at and score dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps db. The schema must already be at the latest version.
func New(db *sqlx.DB, d dialect.Dialect, opts ...Option) *Store {
	s := &Store{
		db:       db,
		dialect:  d,
		sessions: session.None{},
		sink:     changes.Discard,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the handle for maintenance tasks such as backups.
func (s *Store) DB() *sqlx.DB { return s.db }

// Dialect reports the engine behind the store.
func (s *Store) Dialect() dialect.Dialect { return s.dialect }

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SchemaVersion reads the version stamped on the store.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return s.dialect.Version(ctx, s.db)
}

func (s *Store) rebind(query string) string { return s.db.Rebind(query) }

func (s *Store) exec(ctx context.Context, e sqlx.ExecerContext, query string, args ...any) (sql.Result, error) {
	query = s.rebind(query)
	if s.hooks.exec != nil {
		return s.hooks.exec(ctx, e, query, args...)
	}
	return e.ExecContext(ctx, query, args...)
}

func (s *Store) nowMillis() int64 { return s.now().UnixMilli() }

// ActingUser resolves the user an operation runs as: the context user, then
// the persisted session, then the default user (created again if missing).
// Callers resolve it once per operation and before opening a transaction.
func (s *Store) ActingUser(ctx context.Context) (int64, error) {
	if id, ok := session.FromContext(ctx); ok {
		return id, nil
	}

	id, ok, err := s.sessions.Load()
	if err != nil {
		logger.Warn("Failed to load session, using default user", "error", err)
	} else if ok {
		exists, err := s.userExists(ctx, id)
		if err != nil {
			return 0, err
		}
		if exists {
			return id, nil
		}
		logger.Warn("Session refers to a missing user, using default user", "user_id", id)
	}
	return s.DefaultUserID(ctx)
}

// DefaultUserID returns the synthetic owner of pre-multi-user data, creating
// it if a previous cascade removed it.
func (s *Store) DefaultUserID(ctx context.Context) (int64, error) {
	u, found, err := s.GetUserByEmail(ctx, constants.DefaultUserEmail)
	if err != nil {
		return 0, err
	}
	if found {
		return u.ID, nil
	}
	logger.Info("Default user missing, seeding it again")
	var id int64
	err = s.db.GetContext(ctx, &id, s.rebind(
		`INSERT INTO users (email, created_at, is_active) VALUES (?, ?, 1) RETURNING user_id`),
		constants.DefaultUserEmail, s.nowMillis())
	if err != nil {
		return 0, s.classify("users", "email", fmt.Errorf("failed to seed default user: %w", err))
	}
	return id, nil
}

func (s *Store) userExists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.rebind(`SELECT count(*) FROM users WHERE user_id = ?`), id); err != nil {
		return false, fmt.Errorf("failed to look up user %d: %w", id, err)
	}
	return n > 0, nil
}

// publish hands a committed change to the sink. The write already succeeded,
// so a sink failure is logged rather than returned.
func (s *Store) publish(ctx context.Context, c changes.Change) {
	if err := s.sink.Publish(ctx, c); err != nil {
		logger.Warn("Failed to publish change", "change", c.String(), "error", err)
	}
}
