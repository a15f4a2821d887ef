// Package dialect renders schema steps to engine-specific SQL and answers the
// catalog questions the migration engine asks before applying them.
package dialect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/habitus/internal/schema"
)

// Bindings maps captured ids to their values while a migration runs.
type Bindings map[schema.Binding]int64

// Dialect is implemented once per storage engine.
type Dialect interface {
	Name() string
	// CreateTableSQL renders a CREATE TABLE IF NOT EXISTS statement. Binding
	// defaults are rendered as no default; the rows that need them are written
	// by the seed steps.
	CreateTableSQL(t schema.Table) (string, error)
	// AddColumnSQL renders an ALTER TABLE ... ADD COLUMN statement with
	// bindings resolved to literals.
	AddColumnSQL(table string, c schema.Column, b Bindings) (string, error)

	TableExists(ctx context.Context, q sqlx.QueryerContext, table string) (bool, error)
	ColumnExists(ctx context.Context, q sqlx.QueryerContext, table, column string) (bool, error)

	// Version reads the schema version, 0 for an empty store.
	Version(ctx context.Context, q sqlx.ExtContext) (int, error)
	// SetVersion stamps the schema version. Called inside the version's transaction.
	SetVersion(ctx context.Context, e sqlx.ExtContext, v int) error

	IsDuplicateColumn(err error) bool
	IsConstraintViolation(err error) bool
}

// QuoteIdent quotes an identifier for both engines.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// renderLiteral renders a registry literal as SQL.
func renderLiteral(l schema.Literal) (string, error) {
	switch v := l.V.(type) {
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case string:
		return quoteString(v), nil
	default:
		return "", fmt.Errorf("unsupported literal %T", l.V)
	}
}

// renderDefault renders a DEFAULT clause. An empty string means no default.
// A nil bindings map renders binding defaults as no default.
func renderDefault(c schema.Column, now string, b Bindings) (string, error) {
	switch d := c.Default.(type) {
	case nil:
		return "", nil
	case schema.Literal:
		s, err := renderLiteral(d)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", c.Name, err)
		}
		return " DEFAULT " + s, nil
	case schema.Now:
		return " DEFAULT " + now, nil
	case schema.Binding:
		if b == nil {
			return "", nil
		}
		id, ok := b[d]
		if !ok {
			return "", fmt.Errorf("column %s: binding %s was not captured", c.Name, d)
		}
		return " DEFAULT " + strconv.FormatInt(id, 10), nil
	default:
		return "", fmt.Errorf("column %s: unsupported default %T", c.Name, c.Default)
	}
}

func renderReference(fk *schema.ForeignKey) string {
	return fmt.Sprintf(" REFERENCES %s(%s)", QuoteIdent(fk.Table), QuoteIdent(fk.Column))
}
