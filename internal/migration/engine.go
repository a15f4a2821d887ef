// Package migration brings an on-disk store to the latest schema version by
// applying the additive steps declared in the schema registry.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/habitus/internal/dialect"
	"github.com/julianstephens/habitus/internal/logger"
	"github.com/julianstephens/habitus/internal/schema"
)

// StepHook runs before every step. Returning an error aborts the version.
type StepHook func(version int, step schema.Step) error

// Engine applies schema versions to one database.
type Engine struct {
	db       *sqlx.DB
	dialect  dialect.Dialect
	registry *schema.Registry
	now      func() time.Time
	hook     StepHook
}

type Option func(*Engine)

// WithRegistry replaces the default registry.
func WithRegistry(r *schema.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithClock sets the clock used for Now values in backfilled rows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStepHook installs a hook that runs before every step.
func WithStepHook(h StepHook) Option {
	return func(e *Engine) { e.hook = h }
}

// NewEngine creates an engine for db.
func NewEngine(db *sqlx.DB, d dialect.Dialect, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		dialect:  d,
		registry: schema.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Latest is the registry's highest version.
func (e *Engine) Latest() int {
	return e.registry.Latest()
}

// CurrentVersion reads the version stamped on the store.
func (e *Engine) CurrentVersion(ctx context.Context) (int, error) {
	return e.dialect.Version(ctx, e.db)
}

// Migrate brings the store to the latest version and returns the version it
// started from. An empty store is bootstrapped directly. A store stamped with
// a newer version than the registry knows is rejected.
func (e *Engine) Migrate(ctx context.Context, logFn func(string)) (int, error) {
	if logFn == nil {
		logFn = func(string) {}
	}

	current, err := e.CurrentVersion(ctx)
	if err != nil {
		return 0, fatal(0, nil, err)
	}
	latest := e.Latest()

	if current > latest {
		return current, fatal(current, nil, fmt.Errorf(
			"database schema version (%d) is newer than supported version (%d) - please upgrade the application",
			current, latest))
	}
	if current == latest {
		logFn(fmt.Sprintf("Database schema is up to date (version %d)", current))
		return current, nil
	}

	if current == 0 {
		legacy, err := e.dialect.TableExists(ctx, e.db, schema.TableHabits)
		if err != nil {
			return 0, fatal(0, nil, err)
		}
		if !legacy {
			logFn(fmt.Sprintf("Creating schema at version %d", latest))
			if err := e.Bootstrap(ctx, latest); err != nil {
				return 0, err
			}
			return 0, nil
		}
		// Tables without a version stamp: replay every step, all of which
		// tolerate an existing target.
		logFn("Found an unversioned store, replaying all versions")
	}

	logFn(fmt.Sprintf("Current schema version: %d", current))
	logFn(fmt.Sprintf("Target schema version: %d", latest))
	logFn(fmt.Sprintf("Applying %d migration(s)...", latest-current))

	if _, err := e.Upgrade(ctx, current, latest); err != nil {
		return current, err
	}
	logFn(fmt.Sprintf("Schema upgraded to version %d", latest))
	return current, nil
}

// Upgrade applies versions current+1 through target, one transaction per
// version. It returns the last version that committed; on failure that is
// the version the store was left at.
func (e *Engine) Upgrade(ctx context.Context, current, target int) (int, error) {
	if current < 0 || current > target {
		return current, fatal(target, nil, fmt.Errorf("cannot upgrade from version %d to %d", current, target))
	}
	if target > e.Latest() {
		return current, fatal(target, nil, fmt.Errorf("unknown target version %d (latest is %d)", target, e.Latest()))
	}

	bindings, err := e.recoverBindings(ctx, current)
	if err != nil {
		return current, fatal(current, nil, err)
	}

	for v := current + 1; v <= target; v++ {
		ver, _ := e.registry.Version(v)
		captured, err := e.applyVersion(ctx, ver, bindings)
		if err != nil {
			logger.Error("Migration failed", "version", v, "error", err)
			return v - 1, err
		}
		bindings = captured
		logger.Info("Migration applied", "version", v, "name", ver.Name)
	}
	return target, nil
}

func (e *Engine) applyVersion(ctx context.Context, ver schema.Version, bindings dialect.Bindings) (dialect.Bindings, error) {
	local := make(dialect.Bindings, len(bindings))
	for k, v := range bindings {
		local[k] = v
	}

	err := e.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, step := range ver.Steps {
			if e.hook != nil {
				if err := e.hook(ver.Number, step); err != nil {
					return fatal(ver.Number, step, err)
				}
			}
			err := e.applyStep(ctx, tx, step, local)
			if errors.Is(err, ErrStepSkipped) {
				logger.Info("Migration step skipped", "version", ver.Number, "step", step.String())
				continue
			}
			if err != nil {
				return fatal(ver.Number, step, err)
			}
		}
		if err := e.dialect.SetVersion(ctx, tx, ver.Number); err != nil {
			return fatal(ver.Number, nil, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return local, nil
}

// Bootstrap creates a fresh store at version directly from the folded table
// layout and writes the seed rows of every version up to it.
func (e *Engine) Bootstrap(ctx context.Context, version int) error {
	tables, err := e.registry.TablesAt(version)
	if err != nil {
		return fatal(version, nil, err)
	}

	return e.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, t := range schema.DependencyOrder(tables) {
			step := schema.CreateTable{Table: t}
			if err := e.applyStep(ctx, tx, step, nil); err != nil {
				return fatal(version, step, err)
			}
		}
		bindings := dialect.Bindings{}
		for _, seed := range e.registry.Seeds(version) {
			if err := e.applyStep(ctx, tx, seed, bindings); err != nil {
				return fatal(version, seed, err)
			}
		}
		if err := e.dialect.SetVersion(ctx, tx, version); err != nil {
			return fatal(version, nil, err)
		}
		logger.Info("Schema bootstrapped", "version", version)
		return nil
	})
}

// PlannedStep is one entry of a dry-run plan.
type PlannedStep struct {
	Version int
	Step    schema.Step
}

func (p PlannedStep) String() string {
	return fmt.Sprintf("v%d: %s", p.Version, p.Step)
}

// Plan lists the steps Upgrade would apply without touching the database.
func (e *Engine) Plan(current, target int) ([]PlannedStep, error) {
	if current < 0 || current > target || target > e.Latest() {
		return nil, fmt.Errorf("invalid plan range %d..%d (latest is %d)", current, target, e.Latest())
	}
	var plan []PlannedStep
	for v := current + 1; v <= target; v++ {
		ver, _ := e.registry.Version(v)
		for _, s := range ver.Steps {
			plan = append(plan, PlannedStep{Version: v, Step: s})
		}
	}
	return plan, nil
}

func (e *Engine) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return fatal(0, nil, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Error("Migration rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fatal(0, nil, fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

func (e *Engine) applyStep(ctx context.Context, tx *sqlx.Tx, step schema.Step, b dialect.Bindings) error {
	switch s := step.(type) {
	case schema.CreateTable:
		stmt, err := e.dialect.CreateTableSQL(s.Table)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, stmt)
		return err
	case schema.AddColumn:
		return e.addColumn(ctx, tx, s, b)
	case schema.BackfillRow:
		return e.backfillRow(ctx, tx, s, b)
	case schema.BackfillColumnFromColumn:
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s = %s`,
			dialect.QuoteIdent(s.Table), dialect.QuoteIdent(s.Dst), dialect.QuoteIdent(s.Src)))
		return err
	default:
		return fmt.Errorf("unsupported step %T", step)
	}
}

const addColumnSavepoint = "habitus_add_column"

func (e *Engine) addColumn(ctx context.Context, tx *sqlx.Tx, s schema.AddColumn, b dialect.Bindings) error {
	exists, err := e.dialect.ColumnExists(ctx, tx, s.Table, s.Column.Name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s.%s exists", ErrStepSkipped, s.Table, s.Column.Name)
	}

	stmt, err := e.dialect.AddColumnSQL(s.Table, s.Column, b)
	if err != nil {
		return err
	}

	// A failed statement poisons a Postgres transaction, so the ALTER runs
	// under a savepoint that can be rolled back on a duplicate column.
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+addColumnSavepoint); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+addColumnSavepoint); rbErr != nil {
			return fmt.Errorf("%w (rollback to savepoint: %v)", err, rbErr)
		}
		if e.dialect.IsDuplicateColumn(err) {
			_, _ = tx.ExecContext(ctx, "RELEASE SAVEPOINT "+addColumnSavepoint)
			return fmt.Errorf("%w: %v", ErrStepSkipped, err)
		}
		return err
	}
	_, err = tx.ExecContext(ctx, "RELEASE SAVEPOINT "+addColumnSavepoint)
	return err
}

func (e *Engine) resolve(v schema.Value, b dialect.Bindings) (any, error) {
	switch v := v.(type) {
	case schema.Literal:
		return v.V, nil
	case schema.Now:
		return e.now().UnixMilli(), nil
	case schema.Binding:
		id, ok := b[v]
		if !ok {
			return nil, fmt.Errorf("binding %s was not captured", v)
		}
		return id, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

func (e *Engine) findRow(ctx context.Context, q sqlx.QueryerContext, s schema.BackfillRow, pk string, b dialect.Bindings) (int64, bool, error) {
	conds := make([]string, len(s.Key))
	args := make([]any, len(s.Key))
	for i, k := range s.Key {
		v, _ := s.Value(k)
		arg, err := e.resolve(v, b)
		if err != nil {
			return 0, false, err
		}
		conds[i] = dialect.QuoteIdent(k) + " = ?"
		args[i] = arg
	}
	query := fmt.Sprintf(`SELECT %[1]s FROM %[2]s WHERE %[3]s ORDER BY %[1]s LIMIT 1`,
		dialect.QuoteIdent(pk), dialect.QuoteIdent(s.Table), strings.Join(conds, " AND "))

	var id int64
	err := sqlx.GetContext(ctx, q, &id, e.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (e *Engine) backfillRow(ctx context.Context, tx *sqlx.Tx, s schema.BackfillRow, b dialect.Bindings) error {
	pk, err := e.primaryKey(s.Table)
	if err != nil {
		return err
	}

	id, found, err := e.findRow(ctx, tx, s, pk, b)
	if err != nil {
		return err
	}
	if !found {
		cols := make([]string, len(s.Values))
		marks := make([]string, len(s.Values))
		args := make([]any, len(s.Values))
		for i, a := range s.Values {
			arg, err := e.resolve(a.Value, b)
			if err != nil {
				return err
			}
			cols[i] = dialect.QuoteIdent(a.Column)
			marks[i] = "?"
			args[i] = arg
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING %s`,
			dialect.QuoteIdent(s.Table), strings.Join(cols, ", "), strings.Join(marks, ", "), dialect.QuoteIdent(pk))
		if err := sqlx.GetContext(ctx, tx, &id, e.db.Rebind(query), args...); err != nil {
			return err
		}
	}
	if s.CaptureAs != "" {
		b[s.CaptureAs] = id
	}
	return nil
}

func (e *Engine) primaryKey(table string) (string, error) {
	tables, err := e.registry.TablesAt(e.registry.Latest())
	if err != nil {
		return "", err
	}
	for _, t := range tables {
		if t.Name != table {
			continue
		}
		if c, ok := t.PrimaryKey(); ok {
			return c.Name, nil
		}
	}
	return "", fmt.Errorf("table %s has no primary key", table)
}

// recoverBindings finds the rows captured by versions that were applied in
// an earlier run, so later versions can still refer to them.
func (e *Engine) recoverBindings(ctx context.Context, upTo int) (dialect.Bindings, error) {
	b := dialect.Bindings{}
	for _, seed := range e.registry.Seeds(upTo) {
		if seed.CaptureAs == "" {
			continue
		}
		ok, err := e.dialect.TableExists(ctx, e.db, seed.Table)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		pk, err := e.primaryKey(seed.Table)
		if err != nil {
			return nil, err
		}
		id, found, err := e.findRow(ctx, e.db, seed, pk, b)
		if err != nil {
			return nil, fmt.Errorf("failed to recover %s: %w", seed.CaptureAs, err)
		}
		if found {
			b[seed.CaptureAs] = id
		}
	}
	return b, nil
}

// Status describes what Migrate would do to the store.
type Status struct {
	Current int
	Latest  int
	// Bootstrap is set for an empty store, which is created at Latest
	// directly instead of replaying Steps.
	Bootstrap bool
	Steps     []PlannedStep
}

// UpToDate reports whether Migrate would be a no-op.
func (s Status) UpToDate() bool { return s.Current == s.Latest }

// Status inspects the store without changing it.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	current, err := e.CurrentVersion(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Current: current, Latest: e.Latest()}
	if current > st.Latest {
		return st, fmt.Errorf("database schema version (%d) is newer than supported version (%d)", current, st.Latest)
	}
	if current == 0 {
		legacy, err := e.dialect.TableExists(ctx, e.db, schema.TableHabits)
		if err != nil {
			return Status{}, err
		}
		st.Bootstrap = !legacy
		if st.Bootstrap {
			return st, nil
		}
	}
	if st.Steps, err = e.Plan(current, st.Latest); err != nil {
		return Status{}, err
	}
	return st, nil
}
