// Package schema declares the persisted layout of the habit store as an
// ordered list of additive steps per schema version.
//
// Nothing in this package touches a database. The migration engine renders
// and applies the steps; tests can inspect them without executing anything.
package schema

import "fmt"

// ColumnType is the storage class of a column.
type ColumnType int

const (
	Integer ColumnType = iota
	Real
	Text
)

func (t ColumnType) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	case Text:
		return "TEXT"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Value is a literal, the current time or a binding captured during migration.
type Value interface {
	value()
	String() string
}

// Literal is a constant value (int, int64, float64 or string).
type Literal struct {
	V any
}

// Now is the current time in epoch milliseconds. As a column default it
// renders to an engine expression; as a backfill value the engine's clock
// is read at migration time.
type Now struct{}

// Binding refers to an id captured by an earlier BackfillRow step.
type Binding string

func (Literal) value() {}
func (Now) value()     {}
func (Binding) value() {}

func (l Literal) String() string {
	if s, ok := l.V.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", l.V)
}
func (Now) String() string       { return "now()" }
func (b Binding) String() string { return "$" + string(b) }

// ForeignKey is a declarative reference. Cascades are never declared.
type ForeignKey struct {
	Table  string
	Column string
}

// Column describes one column. PrimaryKey columns are engine-generated integers.
type Column struct {
	Name       string
	Type       ColumnType
	PrimaryKey bool
	NotNull    bool
	Unique     bool
	Default    Value
	References *ForeignKey
}

// Table is a named list of columns in declaration order.
type Table struct {
	Name    string
	Columns []Column
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKey returns the generated id column.
func (t Table) PrimaryKey() (Column, bool) {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames lists the column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (t Table) clone() Table {
	cols := make([]Column, len(t.Columns))
	copy(cols, t.Columns)
	return Table{Name: t.Name, Columns: cols}
}
