package migration

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/dialect"
	"github.com/julianstephens/habitus/internal/schema"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newEngine(db *sqlx.DB, opts ...Option) *Engine {
	clock := func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) }
	return NewEngine(db, dialect.SQLite{}, append([]Option{WithClock(clock)}, opts...)...)
}

const legacyMillis int64 = 1_700_000_000_000

// seedV1 builds a version 1 store holding legacy habits and scores.
func seedV1(t *testing.T, db *sqlx.DB, points ...int) {
	t.Helper()
	ctx := context.Background()
	if err := newEngine(db).Bootstrap(ctx, 1); err != nil {
		t.Fatalf("Bootstrap(1) failed: %v", err)
	}
	for i, p := range points {
		title := fmt.Sprintf("habit-%d", i)
		if _, err := db.Exec(`INSERT INTO habits (title, type, points, created_at) VALUES (?, 'READ', ?, ?)`,
			title, p, legacyMillis); err != nil {
			t.Fatalf("failed to insert legacy habit: %v", err)
		}
		if _, err := db.Exec(`INSERT INTO scores (habit_title, points, date) VALUES (?, ?, ?)`,
			title, p, legacyMillis); err != nil {
			t.Fatalf("failed to insert legacy score: %v", err)
		}
	}
}

func userVersion(t *testing.T, db *sqlx.DB) int {
	t.Helper()
	var v int
	if err := db.Get(&v, "PRAGMA user_version"); err != nil {
		t.Fatalf("failed to read user_version: %v", err)
	}
	return v
}

func tableExists(t *testing.T, db *sqlx.DB, name string) bool {
	t.Helper()
	ok, err := dialect.SQLite{}.TableExists(context.Background(), db, name)
	if err != nil {
		t.Fatalf("TableExists(%s): %v", name, err)
	}
	return ok
}

func count(t *testing.T, db *sqlx.DB, table string) int {
	t.Helper()
	var n int
	if err := db.Get(&n, "SELECT count(*) FROM "+table); err != nil {
		t.Fatalf("count(%s): %v", table, err)
	}
	return n
}

// snapshot renders the schema and every row so two stores can be compared.
func snapshot(t *testing.T, db *sqlx.DB) string {
	t.Helper()
	var b strings.Builder

	var ddl []string
	if err := db.Select(&ddl, `SELECT sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`); err != nil {
		t.Fatalf("failed to read schema: %v", err)
	}
	b.WriteString(strings.Join(ddl, "\n"))
	fmt.Fprintf(&b, "\nuser_version=%d\n", userVersion(t, db))

	for _, table := range []string{"users", "habits", "scores"} {
		if !tableExists(t, db, table) {
			continue
		}
		rows, err := db.Queryx("SELECT * FROM " + table + " ORDER BY 1")
		if err != nil {
			t.Fatalf("failed to dump %s: %v", table, err)
		}
		for rows.Next() {
			vals, err := rows.SliceScan()
			if err != nil {
				t.Fatalf("failed to scan %s: %v", table, err)
			}
			fmt.Fprintf(&b, "%s %v\n", table, vals)
		}
		rows.Close()
	}
	return b.String()
}

func TestMigrateEmptyStoreBootstraps(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var messages []string
	from, err := newEngine(db).Migrate(ctx, func(m string) { messages = append(messages, m) })
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if from != 0 {
		t.Errorf("expected to start from 0, got %d", from)
	}
	if v := userVersion(t, db); v != schema.Default().Latest() {
		t.Errorf("expected version %d, got %d", schema.Default().Latest(), v)
	}
	if len(messages) == 0 || !strings.Contains(messages[0], "Creating schema") {
		t.Errorf("unexpected progress messages: %v", messages)
	}

	var email string
	if err := db.Get(&email, "SELECT email FROM users"); err != nil {
		t.Fatalf("default user missing: %v", err)
	}
	if email != constants.DefaultUserEmail {
		t.Errorf("expected default user %s, got %s", constants.DefaultUserEmail, email)
	}

	var cols int
	if err := db.Get(&cols, "SELECT count(*) FROM pragma_table_info('habits')"); err != nil {
		t.Fatal(err)
	}
	if cols != 25 {
		t.Errorf("expected 25 habit columns, got %d", cols)
	}

	// a second run is a no-op
	from, err = newEngine(db).Migrate(ctx, nil)
	if err != nil || from != schema.Default().Latest() {
		t.Errorf("second Migrate = (%d, %v)", from, err)
	}
}

func TestUpgradeCompleteness(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	legacy := []int{5, 10, 20}
	seedV1(t, db, legacy...)

	habitsBefore, scoresBefore := count(t, db, "habits"), count(t, db, "scores")

	got, err := newEngine(db).Upgrade(ctx, 1, 5)
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if got != 5 || userVersion(t, db) != 5 {
		t.Fatalf("expected version 5, got %d (stamped %d)", got, userVersion(t, db))
	}

	if n := count(t, db, "users"); n != 1 {
		t.Fatalf("expected exactly one synthesized user, got %d", n)
	}
	var defaultID int64
	if err := db.Get(&defaultID, "SELECT user_id FROM users WHERE email = ?", constants.DefaultUserEmail); err != nil {
		t.Fatalf("default user missing: %v", err)
	}

	type row struct {
		UserID *int64 `db:"user_id"`
		Points int    `db:"points"`
		PPC    *int   `db:"points_per_completion"`
	}
	var habits []row
	if err := db.Select(&habits, "SELECT user_id, points, points_per_completion FROM habits ORDER BY id"); err != nil {
		t.Fatal(err)
	}
	for i, h := range habits {
		if h.UserID == nil || *h.UserID != defaultID {
			t.Errorf("habit %d: user_id = %v, want %d", i, h.UserID, defaultID)
		}
		if h.PPC == nil || *h.PPC != legacy[i] {
			t.Errorf("habit %d: points_per_completion = %v, want %d", i, h.PPC, legacy[i])
		}
	}

	var orphans int
	if err := db.Get(&orphans, "SELECT count(*) FROM scores WHERE user_id IS NULL OR user_id <> ?", defaultID); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("%d scores not owned by the default user", orphans)
	}

	if n := count(t, db, "habits"); n != habitsBefore {
		t.Errorf("habits: %d rows before, %d after", habitsBefore, n)
	}
	if n := count(t, db, "scores"); n != scoresBefore {
		t.Errorf("scores: %d rows before, %d after", scoresBefore, n)
	}
}

func TestUpgradeIdempotent(t *testing.T) {
	ctx := context.Background()

	once := setupTestDB(t)
	seedV1(t, once, 7, 9)
	if _, err := newEngine(once).Upgrade(ctx, 1, 5); err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}

	twice := setupTestDB(t)
	seedV1(t, twice, 7, 9)
	for i := 0; i < 2; i++ {
		if _, err := newEngine(twice).Upgrade(ctx, 1, 5); err != nil {
			t.Fatalf("Upgrade run %d failed: %v", i+1, err)
		}
	}

	if a, b := snapshot(t, once), snapshot(t, twice); a != b {
		t.Errorf("state differs after a repeated upgrade\nonce:\n%s\ntwice:\n%s", a, b)
	}
}

func TestUpgradeFailureKeepsLastVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedV1(t, db, 10)

	boom := errors.New("simulated failure")
	hook := func(version int, step schema.Step) error {
		if version == 5 && step.Kind() == schema.KindAddColumn {
			return boom
		}
		return nil
	}

	got, err := newEngine(db, WithStepHook(hook)).Upgrade(ctx, 1, 5)
	if err == nil {
		t.Fatal("expected failure")
	}
	if !errors.Is(err, ErrFatal) || !errors.Is(err, boom) {
		t.Errorf("expected ErrFatal wrapping the cause, got %v", err)
	}
	var merr *Error
	if !errors.As(err, &merr) || merr.Version != 5 {
		t.Errorf("expected *Error for version 5, got %#v", err)
	}
	if got != 4 {
		t.Errorf("expected Upgrade to report version 4, got %d", got)
	}
	if v := userVersion(t, db); v != 4 {
		t.Errorf("expected store at version 4, got %d", v)
	}
	if tableExists(t, db, "users") {
		t.Error("users table from the failed version was not rolled back")
	}

	// the next run completes the upgrade
	if _, err := newEngine(db).Migrate(ctx, nil); err != nil {
		t.Fatalf("Migrate after failure: %v", err)
	}
	if v := userVersion(t, db); v != 5 {
		t.Errorf("expected version 5, got %d", v)
	}
}

func TestMigrateRejectsNewerStore(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatal(err)
	}
	_, err := newEngine(db).Migrate(context.Background(), nil)
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestMigrateUnversionedLegacyStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// version 1 tables without a version stamp
	seedV1(t, db)
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO habits (title, type, points) VALUES ('Leer', 'READ', 12)`); err != nil {
		t.Fatal(err)
	}

	if _, err := newEngine(db).Migrate(ctx, nil); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if v := userVersion(t, db); v != 5 {
		t.Errorf("expected version 5, got %d", v)
	}
	var ppc int
	if err := db.Get(&ppc, "SELECT points_per_completion FROM habits WHERE title = 'Leer'"); err != nil {
		t.Fatal(err)
	}
	if ppc != 12 {
		t.Errorf("expected points_per_completion 12, got %d", ppc)
	}
	if !tableExists(t, db, "users") {
		t.Error("users table was not created")
	}
}

func TestAddColumnSkipsExisting(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedV1(t, db, 10)

	// a column some earlier build already added by hand
	if _, err := db.Exec("ALTER TABLE habits ADD COLUMN target_value REAL DEFAULT 0"); err != nil {
		t.Fatal(err)
	}

	e := newEngine(db)
	step := schema.AddColumn{Table: "habits", Column: schema.Column{Name: "target_value", Type: schema.Real}}
	err := e.inTx(ctx, func(tx *sqlx.Tx) error {
		return e.addColumn(ctx, tx, step, nil)
	})
	if !errors.Is(err, ErrStepSkipped) {
		t.Errorf("expected ErrStepSkipped, got %v", err)
	}

	if _, err := e.Upgrade(ctx, 1, 5); err != nil {
		t.Fatalf("Upgrade with a pre-existing column failed: %v", err)
	}
}

func TestUpgradeRejectsBadRange(t *testing.T) {
	e := newEngine(setupTestDB(t))
	for _, tc := range [][2]int{{3, 2}, {-1, 2}, {0, 9}} {
		if _, err := e.Upgrade(context.Background(), tc[0], tc[1]); !errors.Is(err, ErrFatal) {
			t.Errorf("Upgrade(%d, %d): expected ErrFatal, got %v", tc[0], tc[1], err)
		}
	}
}

func TestPlan(t *testing.T) {
	e := newEngine(setupTestDB(t))

	plan, err := e.Plan(3, 4)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan) != 1 || plan[0].String() != "v4: add column habits.habit_icon TEXT" {
		t.Errorf("unexpected plan: %v", plan)
	}

	plan, err = e.Plan(0, 5)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan[0].Version != 1 || plan[len(plan)-1].Version != 5 {
		t.Errorf("plan does not span 1..5: %v", plan)
	}

	if _, err := e.Plan(5, 6); err == nil {
		t.Error("expected error planning past the latest version")
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store bootstraps", func(t *testing.T) {
		st, err := newEngine(setupTestDB(t)).Status(ctx)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if !st.Bootstrap || len(st.Steps) != 0 || st.Current != 0 {
			t.Errorf("unexpected status for empty store: %+v", st)
		}
	})

	t.Run("legacy store plans remaining versions", func(t *testing.T) {
		db := setupTestDB(t)
		seedV1(t, db, 10)
		e := newEngine(db)
		st, err := e.Status(ctx)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if st.Bootstrap || st.Current != 1 || st.UpToDate() {
			t.Errorf("unexpected status for v1 store: %+v", st)
		}
		want, _ := e.Plan(1, e.Latest())
		if len(st.Steps) != len(want) {
			t.Errorf("expected %d planned steps, got %d", len(want), len(st.Steps))
		}
		if userVersion(t, db) != 1 {
			t.Error("Status must not change the store")
		}
	})

	t.Run("current store", func(t *testing.T) {
		db := setupTestDB(t)
		e := newEngine(db)
		if _, err := e.Migrate(ctx, nil); err != nil {
			t.Fatalf("Migrate failed: %v", err)
		}
		st, err := e.Status(ctx)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if !st.UpToDate() || len(st.Steps) != 0 {
			t.Errorf("expected up-to-date status, got %+v", st)
		}
	})

	t.Run("newer store", func(t *testing.T) {
		db := setupTestDB(t)
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schema.Default().Latest()+1)); err != nil {
			t.Fatal(err)
		}
		if _, err := newEngine(db).Status(ctx); err == nil {
			t.Error("expected error for newer store")
		}
	})
}
