package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	pq "github.com/lib/pq"

	"github.com/julianstephens/habitus/internal/schema"
)

const (
	pqDuplicateColumn    = pq.ErrorCode("42701")
	pqIntegrityViolation = "23"
)

const postgresNowMillis = "(FLOOR(EXTRACT(EPOCH FROM clock_timestamp()) * 1000)::BIGINT)"

// Postgres targets lib/pq. The schema version lives in a single-row
// schema_version table.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) columnType(c schema.Column) string {
	if c.PrimaryKey {
		return "BIGSERIAL PRIMARY KEY"
	}
	switch c.Type {
	case schema.Integer:
		return "BIGINT"
	case schema.Real:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

func (d Postgres) columnSQL(c schema.Column, b Bindings) (string, error) {
	def, err := renderDefault(c, postgresNowMillis, b)
	if err != nil {
		return "", err
	}
	s := QuoteIdent(c.Name) + " " + d.columnType(c)
	if c.NotNull {
		s += " NOT NULL"
	}
	if c.Unique {
		s += " UNIQUE"
	}
	s += def
	if c.References != nil {
		s += renderReference(c.References)
	}
	return s, nil
}

func (d Postgres) CreateTableSQL(t schema.Table) (string, error) {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		s, err := d.columnSQL(c, nil)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		cols[i] = "\t" + s
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", QuoteIdent(t.Name), strings.Join(cols, ",\n")), nil
}

func (d Postgres) AddColumnSQL(table string, c schema.Column, b Bindings) (string, error) {
	if b == nil {
		b = Bindings{}
	}
	s, err := d.columnSQL(c, b)
	if err != nil {
		return "", fmt.Errorf("table %s: %w", table, err)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", QuoteIdent(table), s), nil
}

func (Postgres) TableExists(ctx context.Context, q sqlx.QueryerContext, table string) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n,
		`SELECT count(*) FROM information_schema.tables
		 WHERE table_schema = current_schema() AND table_name = $1`, table); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

func (Postgres) ColumnExists(ctx context.Context, q sqlx.QueryerContext, table, column string) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n,
		`SELECT count(*) FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`, table, column); err != nil {
		return false, fmt.Errorf("failed to check column %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

func ensureVersionTable(ctx context.Context, e sqlx.ExtContext) error {
	_, err := e.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema_version table: %w", err)
	}
	return nil
}

func (Postgres) Version(ctx context.Context, q sqlx.ExtContext) (int, error) {
	if err := ensureVersionTable(ctx, q); err != nil {
		return 0, err
	}
	var v int
	err := sqlx.GetContext(ctx, q, &v, "SELECT version FROM schema_version")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return v, nil
}

func (Postgres) SetVersion(ctx context.Context, e sqlx.ExtContext, v int) error {
	if err := ensureVersionTable(ctx, e); err != nil {
		return err
	}
	if _, err := e.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("failed to clear version: %w", err)
	}
	if _, err := e.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES ($1)", v); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	return nil
}

func (Postgres) IsDuplicateColumn(err error) bool {
	var perr *pq.Error
	return errors.As(err, &perr) && perr.Code == pqDuplicateColumn
}

func (Postgres) IsConstraintViolation(err error) bool {
	var perr *pq.Error
	return errors.As(err, &perr) && perr.Code.Class() == pqIntegrityViolation
}
