package schema

import (
	"errors"
	"fmt"
)

// Version groups the steps that take a store from Number-1 to Number.
type Version struct {
	Number int
	Name   string
	Steps  []Step
}

// Registry is an ordered, validated list of versions starting at 1.
type Registry struct {
	versions []Version
}

// ErrInvalid is returned by New and Validate for a registry that could not be
// applied additively.
var ErrInvalid = errors.New("invalid schema registry")

// New builds a registry and validates it.
func New(versions ...Version) (*Registry, error) {
	r := &Registry{versions: versions}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNew is New for package-level registries.
func MustNew(versions ...Version) *Registry {
	r, err := New(versions...)
	if err != nil {
		panic(err)
	}
	return r
}

// Latest is the highest declared version, or 0 for an empty registry.
func (r *Registry) Latest() int {
	return len(r.versions)
}

// Version returns the declaration for version n.
func (r *Registry) Version(n int) (Version, bool) {
	if n < 1 || n > len(r.versions) {
		return Version{}, false
	}
	return r.versions[n-1], true
}

// Versions returns a copy of every version in order.
func (r *Registry) Versions() []Version {
	out := make([]Version, len(r.versions))
	copy(out, r.versions)
	return out
}

// TablesAt folds the steps of versions 1..v into the resulting table layout,
// in creation order.
func (r *Registry) TablesAt(v int) ([]Table, error) {
	if v < 0 || v > r.Latest() {
		return nil, fmt.Errorf("%w: version %d out of range [0..%d]", ErrInvalid, v, r.Latest())
	}
	var tables []Table
	index := map[string]int{}
	for _, ver := range r.versions[:v] {
		for _, s := range ver.Steps {
			switch s := s.(type) {
			case CreateTable:
				index[s.Table.Name] = len(tables)
				tables = append(tables, s.Table.clone())
			case AddColumn:
				i := index[s.Table]
				tables[i].Columns = append(tables[i].Columns, s.Column)
			}
		}
	}
	return tables, nil
}

// Seeds returns the BackfillRow steps of versions 1..v in order. A store
// bootstrapped directly at v still needs these rows.
func (r *Registry) Seeds(v int) []BackfillRow {
	var out []BackfillRow
	for _, ver := range r.versions[:min(max(v, 0), r.Latest())] {
		for _, s := range ver.Steps {
			if b, ok := s.(BackfillRow); ok {
				out = append(out, b)
			}
		}
	}
	return out
}

// Validate checks that every version can be applied in order: versions are
// contiguous from 1, tables and columns are declared before they are
// referenced, and bindings are captured before they are used.
func (r *Registry) Validate() error {
	tables := map[string]*Table{}
	bindings := map[Binding]bool{}

	fail := func(v int, s Step, format string, args ...any) error {
		msg := fmt.Sprintf(format, args...)
		if s != nil {
			return fmt.Errorf("%w: version %d: %s: %s", ErrInvalid, v, s, msg)
		}
		return fmt.Errorf("%w: version %d: %s", ErrInvalid, v, msg)
	}

	for i, ver := range r.versions {
		if ver.Number != i+1 {
			return fail(ver.Number, nil, "expected version %d", i+1)
		}
		if len(ver.Steps) == 0 {
			return fail(ver.Number, nil, "no steps")
		}
		for _, s := range ver.Steps {
			switch s := s.(type) {
			case CreateTable:
				if _, ok := tables[s.Table.Name]; ok {
					return fail(ver.Number, s, "table already declared")
				}
				if err := checkColumns(s.Table, tables, bindings); err != nil {
					return fail(ver.Number, s, "%v", err)
				}
				t := s.Table.clone()
				tables[t.Name] = &t
			case AddColumn:
				t, ok := tables[s.Table]
				if !ok {
					return fail(ver.Number, s, "unknown table")
				}
				if _, dup := t.Column(s.Column.Name); dup {
					return fail(ver.Number, s, "column already declared")
				}
				if s.Column.PrimaryKey || s.Column.Unique {
					return fail(ver.Number, s, "added columns cannot be keys")
				}
				if s.Column.NotNull && s.Column.Default == nil {
					return fail(ver.Number, s, "NOT NULL column needs a default")
				}
				if err := checkColumn(s.Column, tables, bindings); err != nil {
					return fail(ver.Number, s, "%v", err)
				}
				t.Columns = append(t.Columns, s.Column)
			case BackfillRow:
				t, ok := tables[s.Table]
				if !ok {
					return fail(ver.Number, s, "unknown table")
				}
				if len(s.Key) == 0 {
					return fail(ver.Number, s, "no key columns")
				}
				for _, a := range s.Values {
					if _, ok := t.Column(a.Column); !ok {
						return fail(ver.Number, s, "unknown column %q", a.Column)
					}
					if b, ok := a.Value.(Binding); ok && !bindings[b] {
						return fail(ver.Number, s, "binding %s used before capture", b)
					}
				}
				for _, k := range s.Key {
					if _, ok := s.Value(k); !ok {
						return fail(ver.Number, s, "key column %q has no value", k)
					}
				}
				if s.CaptureAs != "" {
					if _, ok := t.PrimaryKey(); !ok {
						return fail(ver.Number, s, "capture needs a primary key")
					}
					if bindings[s.CaptureAs] {
						return fail(ver.Number, s, "binding %s captured twice", s.CaptureAs)
					}
					bindings[s.CaptureAs] = true
				}
			case BackfillColumnFromColumn:
				t, ok := tables[s.Table]
				if !ok {
					return fail(ver.Number, s, "unknown table")
				}
				dst, ok := t.Column(s.Dst)
				if !ok {
					return fail(ver.Number, s, "unknown column %q", s.Dst)
				}
				if dst.PrimaryKey {
					return fail(ver.Number, s, "cannot overwrite primary key")
				}
				if _, ok := t.Column(s.Src); !ok {
					return fail(ver.Number, s, "unknown column %q", s.Src)
				}
			default:
				return fail(ver.Number, nil, "unsupported step %T", s)
			}
		}
	}
	return nil
}

func checkColumns(t Table, tables map[string]*Table, bindings map[Binding]bool) error {
	if len(t.Columns) == 0 {
		return errors.New("no columns")
	}
	seen := map[string]bool{}
	keys := 0
	for _, c := range t.Columns {
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		if c.PrimaryKey {
			keys++
			if c.Type != Integer {
				return fmt.Errorf("primary key %q must be INTEGER", c.Name)
			}
		}
		if err := checkColumn(c, tables, bindings); err != nil {
			return err
		}
	}
	if keys > 1 {
		return errors.New("more than one primary key")
	}
	return nil
}

func checkColumn(c Column, tables map[string]*Table, bindings map[Binding]bool) error {
	if c.Name == "" {
		return errors.New("empty column name")
	}
	if b, ok := c.Default.(Binding); ok && !bindings[b] {
		return fmt.Errorf("default %s used before capture", b)
	}
	if l, ok := c.Default.(Literal); ok {
		switch l.V.(type) {
		case int, int64, float64, string:
		default:
			return fmt.Errorf("unsupported literal %T for %q", l.V, c.Name)
		}
	}
	if fk := c.References; fk != nil {
		t, ok := tables[fk.Table]
		if !ok {
			return fmt.Errorf("%q references unknown table %q", c.Name, fk.Table)
		}
		if _, ok := t.Column(fk.Column); !ok {
			return fmt.Errorf("%q references unknown column %s.%s", c.Name, fk.Table, fk.Column)
		}
	}
	return nil
}

// DependencyOrder returns tables ordered so that every referenced table
// precedes the tables referencing it. Ties keep their input order.
func DependencyOrder(tables []Table) []Table {
	out := make([]Table, 0, len(tables))
	placed := map[string]bool{}
	for len(out) < len(tables) {
		progress := false
		for _, t := range tables {
			if placed[t.Name] || !depsPlaced(t, placed) {
				continue
			}
			out = append(out, t)
			placed[t.Name] = true
			progress = true
		}
		if !progress {
			// cycle: keep the remainder in input order
			for _, t := range tables {
				if !placed[t.Name] {
					out = append(out, t)
					placed[t.Name] = true
				}
			}
		}
	}
	return out
}

func depsPlaced(t Table, placed map[string]bool) bool {
	for _, c := range t.Columns {
		if fk := c.References; fk != nil && fk.Table != t.Name && !placed[fk.Table] {
			return false
		}
	}
	return true
}
