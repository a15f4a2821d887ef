package dialect

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	pq "github.com/lib/pq"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/julianstephens/habitus/internal/schema"
)

func bootstrapDDL(t *testing.T, d Dialect) string {
	t.Helper()
	r := schema.Default()
	tables, err := r.TablesAt(r.Latest())
	require.NoError(t, err)

	var stmts []string
	for _, tb := range schema.DependencyOrder(tables) {
		s, err := d.CreateTableSQL(tb)
		require.NoError(t, err)
		stmts = append(stmts, s+";\n")
	}
	return strings.Join(stmts, "\n")
}

func TestSQLiteBootstrapGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "sqlite_bootstrap", []byte(bootstrapDDL(t, SQLite{})))
}

func openSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "dialect.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteBootstrapExecutes(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, bootstrapDDL(t, SQLite{}))
	require.NoError(t, err)

	d := SQLite{}
	for _, name := range []string{schema.TableUsers, schema.TableHabits, schema.TableScores} {
		ok, err := d.TableExists(ctx, db, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
	ok, err := d.ColumnExists(ctx, db, schema.TableHabits, "points_per_completion")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = d.ColumnExists(ctx, db, schema.TableHabits, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.ExecContext(ctx, `INSERT INTO habits (title, type) VALUES ('Leer', 'READ')`)
	require.NoError(t, err)
	var created int64
	require.NoError(t, db.GetContext(ctx, &created, `SELECT created_at FROM habits`))
	assert.Greater(t, created, int64(100_000_000_000), "created_at default must be milliseconds")
}

func TestSQLiteAddColumnSQL(t *testing.T) {
	d := SQLite{}
	fk := &schema.ForeignKey{Table: "users", Column: "user_id"}

	tests := []struct {
		name    string
		col     schema.Column
		bind    Bindings
		want    string
		wantErr bool
	}{
		{
			name: "plain",
			col:  schema.Column{Name: "note", Type: schema.Text},
			want: `ALTER TABLE "scores" ADD COLUMN "note" TEXT`,
		},
		{
			name: "literal default",
			col:  schema.Column{Name: "target_value", Type: schema.Real, Default: schema.Literal{V: 0}},
			want: `ALTER TABLE "scores" ADD COLUMN "target_value" REAL DEFAULT 0`,
		},
		{
			name: "string default is quoted",
			col:  schema.Column{Name: "unit", Type: schema.Text, Default: schema.Literal{V: "it's"}},
			want: `ALTER TABLE "scores" ADD COLUMN "unit" TEXT DEFAULT 'it''s'`,
		},
		{
			name: "binding default drops reference",
			col:  schema.Column{Name: "user_id", Type: schema.Integer, Default: schema.Binding("owner"), References: fk},
			bind: Bindings{"owner": 7},
			want: `ALTER TABLE "scores" ADD COLUMN "user_id" INTEGER DEFAULT 7`,
		},
		{
			name: "null default keeps reference",
			col:  schema.Column{Name: "user_id", Type: schema.Integer, References: fk},
			want: `ALTER TABLE "scores" ADD COLUMN "user_id" INTEGER REFERENCES "users"("user_id")`,
		},
		{
			name:    "missing binding",
			col:     schema.Column{Name: "user_id", Type: schema.Integer, Default: schema.Binding("owner")},
			wantErr: true,
		},
		{
			name:    "now default",
			col:     schema.Column{Name: "ts", Type: schema.Integer, Default: schema.Now{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.AddColumnSQL("scores", tt.col, tt.bind)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLiteVersionRoundTrip(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	d := SQLite{}

	v, err := d.Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, d.SetVersion(ctx, db, 4))
	v, err = d.Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 4, v)
}

func TestSQLiteErrorClassification(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	d := SQLite{}

	_, err := db.ExecContext(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY, email TEXT UNIQUE)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO t (email) VALUES ('a@a.com')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO t (email) VALUES ('a@a.com')`)
	require.Error(t, err)
	assert.True(t, d.IsConstraintViolation(err))
	assert.False(t, d.IsDuplicateColumn(err))

	_, err = db.ExecContext(ctx, `ALTER TABLE t ADD COLUMN email TEXT`)
	require.Error(t, err)
	assert.True(t, d.IsDuplicateColumn(err))
	assert.False(t, d.IsConstraintViolation(err))

	assert.False(t, d.IsConstraintViolation(nil))
}

func TestPostgresRendering(t *testing.T) {
	d := Postgres{}
	tables, err := schema.Default().TablesAt(schema.Default().Latest())
	require.NoError(t, err)

	users := schema.DependencyOrder(tables)[0]
	got, err := d.CreateTableSQL(users)
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "users" (
	"user_id" BIGSERIAL PRIMARY KEY,
	"email" TEXT UNIQUE,
	"password_hash" TEXT,
	"created_at" BIGINT,
	"is_active" BIGINT DEFAULT 1
)`, got)

	add, err := d.AddColumnSQL("habits", schema.Column{
		Name: "user_id", Type: schema.Integer, Default: schema.Binding("owner"),
		References: &schema.ForeignKey{Table: "users", Column: "user_id"},
	}, Bindings{"owner": 3})
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "habits" ADD COLUMN "user_id" BIGINT DEFAULT 3 REFERENCES "users"("user_id")`, add)
}

func TestPostgresErrorClassification(t *testing.T) {
	d := Postgres{}

	unique := &pq.Error{Code: "23505"}
	assert.True(t, d.IsConstraintViolation(unique))
	assert.True(t, d.IsConstraintViolation(errors.Join(errors.New("insert"), unique)))
	assert.False(t, d.IsDuplicateColumn(unique))

	dup := &pq.Error{Code: "42701"}
	assert.True(t, d.IsDuplicateColumn(dup))
	assert.False(t, d.IsConstraintViolation(dup))

	assert.False(t, d.IsConstraintViolation(errors.New("boom")))
}
