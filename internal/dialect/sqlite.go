package dialect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"github.com/julianstephens/habitus/internal/schema"
)

// sqliteConstraint is the primary result code SQLITE_CONSTRAINT. Extended
// codes (UNIQUE, NOTNULL, FOREIGNKEY) share the low byte.
const sqliteConstraint = 19

// epoch milliseconds evaluated by SQLite at insert time
const sqliteNowMillis = "(CAST((julianday('now') - 2440587.5) * 86400000 AS INTEGER))"

// SQLite targets modernc.org/sqlite. The schema version lives in PRAGMA user_version.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) columnType(c schema.Column) string {
	if c.PrimaryKey {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return c.Type.String()
}

func (d SQLite) CreateTableSQL(t schema.Table) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", QuoteIdent(t.Name))
	for i, c := range t.Columns {
		def, err := renderDefault(c, sqliteNowMillis, nil)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		fmt.Fprintf(&b, "\t%s %s", QuoteIdent(c.Name), d.columnType(c))
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		if c.Unique {
			b.WriteString(" UNIQUE")
		}
		b.WriteString(def)
		if c.References != nil {
			b.WriteString(renderReference(c.References))
		}
		if i < len(t.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String(), nil
}

func (d SQLite) AddColumnSQL(table string, c schema.Column, bind Bindings) (string, error) {
	if bind == nil {
		bind = Bindings{}
	}
	if _, ok := c.Default.(schema.Now); ok {
		return "", fmt.Errorf("column %s.%s: sqlite cannot add a column with a non-constant default", table, c.Name)
	}
	def, err := renderDefault(c, sqliteNowMillis, bind)
	if err != nil {
		return "", fmt.Errorf("table %s: %w", table, err)
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", QuoteIdent(table), QuoteIdent(c.Name), d.columnType(c))
	if c.NotNull {
		stmt += " NOT NULL"
	}
	stmt += def
	// A REFERENCES clause on an added column requires a NULL default.
	if c.References != nil && def == "" {
		stmt += renderReference(c.References)
	}
	return stmt, nil
}

func (SQLite) TableExists(ctx context.Context, q sqlx.QueryerContext, table string) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n,
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

func (SQLite) ColumnExists(ctx context.Context, q sqlx.QueryerContext, table, column string) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n,
		"SELECT count(*) FROM pragma_table_info(?) WHERE name = ?", table, column); err != nil {
		return false, fmt.Errorf("failed to check column %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

func (SQLite) Version(ctx context.Context, q sqlx.ExtContext) (int, error) {
	var v int
	if err := sqlx.GetContext(ctx, q, &v, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("failed to read user_version: %w", err)
	}
	return v, nil
}

func (SQLite) SetVersion(ctx context.Context, e sqlx.ExtContext, v int) error {
	// PRAGMA does not accept bind parameters.
	if _, err := e.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

func (SQLite) IsDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

func (SQLite) IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code()&0xff == sqliteConstraint
	}
	return strings.Contains(err.Error(), "constraint failed")
}
