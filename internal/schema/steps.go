package schema

import (
	"fmt"
	"strings"
)

// StepKind tags the step variants.
type StepKind string

const (
	KindCreateTable              StepKind = "create_table"
	KindAddColumn                StepKind = "add_column"
	KindBackfillRow              StepKind = "backfill_row"
	KindBackfillColumnFromColumn StepKind = "backfill_column_from_column"
)

// Step is one additive change. The set of implementations is closed: there
// is deliberately no variant that drops or renames anything.
type Step interface {
	Kind() StepKind
	// Target is the table the step writes to.
	Target() string
	String() string
	step()
}

// CreateTable creates Table if it does not exist yet.
type CreateTable struct {
	Table Table
}

// AddColumn appends Column to Table. Applying it to a table that already has
// the column is a no-op.
type AddColumn struct {
	Table  string
	Column Column
}

// Assignment sets Column to Value in a backfilled row.
type Assignment struct {
	Column string
	Value  Value
}

// BackfillRow inserts one row unless a row matching the Key columns already
// exists. The id of the inserted (or matched) row is captured under CaptureAs
// when it is non-empty.
type BackfillRow struct {
	Table     string
	Key       []string
	Values    []Assignment
	CaptureAs Binding
}

// BackfillColumnFromColumn copies Src into Dst for every row of Table.
type BackfillColumnFromColumn struct {
	Table string
	Dst   string
	Src   string
}

func (CreateTable) step()              {}
func (AddColumn) step()                {}
func (BackfillRow) step()              {}
func (BackfillColumnFromColumn) step() {}

func (CreateTable) Kind() StepKind              { return KindCreateTable }
func (AddColumn) Kind() StepKind                { return KindAddColumn }
func (BackfillRow) Kind() StepKind              { return KindBackfillRow }
func (BackfillColumnFromColumn) Kind() StepKind { return KindBackfillColumnFromColumn }

func (s CreateTable) Target() string              { return s.Table.Name }
func (s AddColumn) Target() string                { return s.Table }
func (s BackfillRow) Target() string              { return s.Table }
func (s BackfillColumnFromColumn) Target() string { return s.Table }

func (s CreateTable) String() string {
	return fmt.Sprintf("create table %s (%s)", s.Table.Name, strings.Join(s.Table.ColumnNames(), ", "))
}

func (s AddColumn) String() string {
	out := fmt.Sprintf("add column %s.%s %s", s.Table, s.Column.Name, s.Column.Type)
	if s.Column.Default != nil {
		out += " default " + s.Column.Default.String()
	}
	return out
}

func (s BackfillRow) String() string {
	parts := make([]string, len(s.Values))
	for i, a := range s.Values {
		parts[i] = a.Column + "=" + a.Value.String()
	}
	out := fmt.Sprintf("backfill row %s {%s}", s.Table, strings.Join(parts, ", "))
	if s.CaptureAs != "" {
		out += " capture " + s.CaptureAs.String()
	}
	return out
}

func (s BackfillColumnFromColumn) String() string {
	return fmt.Sprintf("backfill %s.%s from %s", s.Table, s.Dst, s.Src)
}

// Value returns the assignment for column, if any.
func (s BackfillRow) Value(column string) (Value, bool) {
	for _, a := range s.Values {
		if a.Column == column {
			return a.Value, true
		}
	}
	return nil, false
}
