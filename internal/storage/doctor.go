package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/models"
	"github.com/julianstephens/habitus/internal/schema"
)

// Severity of a failed check.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Check is the outcome of one diagnostic.
type Check struct {
	Name     string
	OK       bool
	Severity Severity
	Detail   string
}

// Doctor runs read-only consistency checks against the store.
func (s *Store) Doctor(ctx context.Context) []Check {
	checks := []struct {
		name     string
		severity Severity
		run      func(context.Context) error
	}{
		{"Database reachable", SeverityError, s.checkReachable},
		{"Schema version", SeverityError, s.checkSchemaVersion},
		{"Integrity", SeverityError, s.checkIntegrity},
		{"Habit types", SeverityError, s.checkHabitTypes},
		{"Ownership", SeverityError, s.checkOwnership},
		{"Default user", SeverityWarning, s.checkDefaultUser},
	}

	results := make([]Check, 0, len(checks))
	for _, c := range checks {
		r := Check{Name: c.name, OK: true, Severity: c.severity}
		if err := c.run(ctx); err != nil {
			r.OK = false
			r.Detail = err.Error()
		}
		results = append(results, r)
	}
	return results
}

func (s *Store) checkReachable(ctx context.Context) error {
	var one int
	return s.db.GetContext(ctx, &one, "SELECT 1")
}

func (s *Store) checkSchemaVersion(ctx context.Context) error {
	v, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	latest := schema.Default().Latest()
	switch {
	case v > latest:
		return fmt.Errorf("database schema version (%d) is newer than supported version (%d)", v, latest)
	case v < latest:
		return fmt.Errorf("migrations incomplete: current version %d, latest version %d", v, latest)
	}
	return nil
}

func (s *Store) checkIntegrity(ctx context.Context) error {
	if s.dialect.Name() != "sqlite" {
		return nil
	}
	var results []string
	if err := s.db.SelectContext(ctx, &results, "PRAGMA integrity_check"); err != nil {
		return err
	}
	if len(results) == 1 && results[0] == "ok" {
		return nil
	}
	return fmt.Errorf("integrity_check: %s", strings.Join(results, "; "))
}

func (s *Store) checkHabitTypes(ctx context.Context) error {
	names := make([]any, len(models.HabitTypes))
	for i, t := range models.HabitTypes {
		names[i] = string(t)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	var bad []int64
	if err := s.db.SelectContext(ctx, &bad, s.rebind(
		`SELECT id FROM habits WHERE type IS NULL OR type NOT IN (`+marks+`) ORDER BY id`), names...); err != nil {
		return err
	}
	if len(bad) > 0 {
		return fmt.Errorf("%w: %d habit(s) with unknown type: %v", ErrDataCorruption, len(bad), bad)
	}
	return nil
}

func (s *Store) checkOwnership(ctx context.Context) error {
	var problems []string
	for _, table := range []string{"habits", "scores"} {
		var n int
		err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM `+table+`
			WHERE user_id IS NULL OR user_id NOT IN (SELECT user_id FROM users)`)
		if err != nil {
			return err
		}
		if n > 0 {
			problems = append(problems, fmt.Sprintf("%d %s row(s) without an owner", n, table))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, ", "))
	}
	return nil
}

func (s *Store) checkDefaultUser(ctx context.Context) error {
	var n int
	if err := s.db.GetContext(ctx, &n, s.rebind(`SELECT count(*) FROM users WHERE email = ?`), constants.DefaultUserEmail); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("default user is missing; it is recreated on the next scoped operation")
	}
	return nil
}
