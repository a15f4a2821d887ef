package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/habitus/internal/changes"
	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/models"
)

// validateHabitFields enforces the required attributes. On insert title and
// type must be present; on update they may be absent but never cleared.
func validateHabitFields(f *models.HabitFields, insert bool) error {
	for _, field := range []models.Field{models.FieldTitle, models.FieldType} {
		if !f.Has(field) {
			if insert {
				return &ConstraintError{Table: "habits", Column: string(field), Reason: "is required"}
			}
			continue
		}
		if f.IsNull(field) {
			return &ConstraintError{Table: "habits", Column: string(field), Reason: "cannot be null"}
		}
	}
	if v, ok := f.Get(models.FieldTitle); ok {
		if title, _ := v.(string); strings.TrimSpace(title) == "" {
			return &ConstraintError{Table: "habits", Column: "title", Reason: "cannot be empty"}
		}
	}
	if v, ok := f.Get(models.FieldType); ok {
		if t, _ := v.(models.HabitType); !t.Valid() {
			return &ConstraintError{Table: "habits", Column: "type", Reason: fmt.Sprintf("unknown value %v", v)}
		}
	}
	return nil
}

// titleTaken reports whether owner already has a habit titled title, other
// than exceptID.
func (s *Store) titleTaken(ctx context.Context, tx *sqlx.Tx, owner int64, title string, exceptID int64) (bool, error) {
	var n int
	err := tx.GetContext(ctx, &n, tx.Rebind(
		`SELECT count(*) FROM habits WHERE user_id = ? AND title = ? AND id <> ?`), owner, title, exceptID)
	if err != nil {
		return false, fmt.Errorf("failed to check title: %w", err)
	}
	return n > 0, nil
}

// InsertHabit stores a habit owned by the acting user. Only the fields that
// were set are written; the rest take their column defaults.
// points_per_completion mirrors points.
func (s *Store) InsertHabit(ctx context.Context, f *models.HabitFields) (int64, error) {
	if err := validateHabitFields(f, true); err != nil {
		return 0, err
	}
	owner, err := s.ActingUser(ctx)
	if err != nil {
		return 0, err
	}

	cols := []string{"user_id", "created_at"}
	args := []any{owner, s.nowMillis()}
	for _, field := range f.Fields() {
		v, _ := f.Get(field)
		cols = append(cols, string(field))
		args = append(args, columnValue(v))
		if field == models.FieldPoints {
			cols = append(cols, "points_per_completion")
			args = append(args, columnValue(v))
		}
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	title, _ := f.Get(models.FieldTitle)

	var id int64
	err = s.WithTx(ctx, func(tx *sqlx.Tx) error {
		taken, err := s.titleTaken(ctx, tx, owner, title.(string), 0)
		if err != nil {
			return err
		}
		if taken {
			return &ConstraintError{Table: "habits", Column: "title", Reason: fmt.Sprintf("%q already exists", title)}
		}
		return tx.GetContext(ctx, &id, tx.Rebind(
			`INSERT INTO habits (`+strings.Join(cols, ", ")+`) VALUES (`+marks+`) RETURNING id`), args...)
	})
	if err != nil {
		return 0, s.classify("habits", "title", fmt.Errorf("failed to insert habit: %w", err))
	}

	s.publishHabit(ctx, changes.OpCreate, id, nil)
	return id, nil
}

// GetAllHabits returns the acting user's habits, most recent first.
func (s *Store) GetAllHabits(ctx context.Context) ([]models.Habit, error) {
	owner, err := s.ActingUser(ctx)
	if err != nil {
		return nil, err
	}
	var rows []habitRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT `+habitColumns+` FROM habits WHERE user_id = ? ORDER BY created_at DESC, id DESC`), owner); err != nil {
		return nil, fmt.Errorf("failed to get habits: %w", err)
	}
	habits := make([]models.Habit, 0, len(rows))
	for _, r := range rows {
		h, err := r.model()
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, nil
}

// GetHabitByID fetches a habit by primary key regardless of owner.
func (s *Store) GetHabitByID(ctx context.Context, id int64) (models.Habit, bool, error) {
	var row habitRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT `+habitColumns+` FROM habits WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Habit{}, false, nil
	}
	if err != nil {
		return models.Habit{}, false, fmt.Errorf("failed to get habit %d: %w", id, err)
	}
	h, err := row.model()
	if err != nil {
		return models.Habit{}, false, err
	}
	return h, true, nil
}

// GetHabitIDByTitle returns the lowest id among habits titled title, across
// all users, or NoHabitID.
func (s *Store) GetHabitIDByTitle(ctx context.Context, title string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, s.rebind(`SELECT id FROM habits WHERE title = ? ORDER BY id LIMIT 1`), title)
	if errors.Is(err, sql.ErrNoRows) {
		return constants.NoHabitID, nil
	}
	if err != nil {
		return constants.NoHabitID, fmt.Errorf("failed to look up habit %q: %w", title, err)
	}
	return id, nil
}

// UpdateHabitFull writes the set fields of habit id, leaving the others as
// stored. It reports whether the habit exists.
func (s *Store) UpdateHabitFull(ctx context.Context, id int64, f *models.HabitFields) (bool, error) {
	if err := validateHabitFields(f, false); err != nil {
		return false, err
	}

	var (
		sets []string
		args []any
	)
	for _, field := range f.Fields() {
		v, _ := f.Get(field)
		sets = append(sets, string(field)+" = ?")
		args = append(args, columnValue(v))
		if field == models.FieldPoints {
			sets = append(sets, "points_per_completion = ?")
			args = append(args, columnValue(v))
		}
	}

	var (
		found bool
		pre   habitRow
	)
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &pre, tx.Rebind(`SELECT `+habitColumns+` FROM habits WHERE id = ?`), id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if len(sets) == 0 {
			return nil
		}

		if v, ok := f.Get(models.FieldTitle); ok {
			taken, err := s.titleTaken(ctx, tx, pre.UserID.Int64, v.(string), id)
			if err != nil {
				return err
			}
			if taken {
				return &ConstraintError{Table: "habits", Column: "title", Reason: fmt.Sprintf("%q already exists", v)}
			}
		}

		_, err = s.exec(ctx, tx, `UPDATE habits SET `+strings.Join(sets, ", ")+` WHERE id = ?`, append(args, id)...)
		return err
	})
	if err != nil {
		return false, s.classify("habits", "", fmt.Errorf("failed to update habit %d: %w", id, err))
	}
	if !found || len(sets) == 0 {
		return found, nil
	}

	fields := make([]string, 0, f.Len())
	for _, field := range f.Fields() {
		fields = append(fields, string(field))
	}
	// the snapshot is the pre-image with exactly the written fields applied
	h, err := pre.model()
	if err != nil {
		// an update may repair a corrupt type; fall back to the stored row
		s.publishHabit(ctx, changes.OpUpdate, id, fields)
		return true, nil
	}
	f.Apply(&h)
	c := changes.New(changes.EntityHabit, changes.OpUpdate, id, h.UserID, h)
	c.Fields = fields
	s.publish(ctx, c)
	return true, nil
}

// DeleteHabit removes habit id. Scores keep their denormalized title.
func (s *Store) DeleteHabit(ctx context.Context, id int64) (bool, error) {
	h, found, err := s.GetHabitByID(ctx, id)
	if err != nil && !errors.Is(err, ErrDataCorruption) {
		return false, err
	}

	res, err := s.exec(ctx, s.db, `DELETE FROM habits WHERE id = ?`, id)
	if err != nil {
		return false, s.classify("habits", "id", fmt.Errorf("failed to delete habit %d: %w", id, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	owner := h.UserID
	if !found {
		owner = 0
	}
	s.publish(ctx, changes.New(changes.EntityHabit, changes.OpDelete, id, owner, nil))
	return true, nil
}

// UpdateHabitCompleted sets completed on every habit of the acting user
// titled title and returns how many rows changed.
func (s *Store) UpdateHabitCompleted(ctx context.Context, title string, completed bool) (int64, error) {
	owner, err := s.ActingUser(ctx)
	if err != nil {
		return 0, err
	}

	var ids []int64
	err = s.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		ids, err = s.setCompleted(ctx, tx, owner, title, completed)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update completion of %q: %w", title, err)
	}

	for _, id := range ids {
		s.publishHabit(ctx, changes.OpUpdate, id, []string{"completed"})
	}
	return int64(len(ids)), nil
}

func (s *Store) setCompleted(ctx context.Context, tx *sqlx.Tx, owner int64, title string, completed bool) ([]int64, error) {
	var ids []int64
	if err := tx.SelectContext(ctx, &ids, tx.Rebind(
		`SELECT id FROM habits WHERE user_id = ? AND title = ? ORDER BY id`), owner, title); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := s.exec(ctx, tx, `UPDATE habits SET completed = ? WHERE user_id = ? AND title = ?`,
		columnValue(completed), owner, title); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetHabitPoints returns what completing the acting user's habit titled title
// is worth, or the default of 10 when no such habit exists.
func (s *Store) GetHabitPoints(ctx context.Context, title string) (int, error) {
	owner, err := s.ActingUser(ctx)
	if err != nil {
		return 0, err
	}
	return s.habitPoints(ctx, s.db, owner, title)
}

func (s *Store) habitPoints(ctx context.Context, q sqlx.QueryerContext, owner int64, title string) (int, error) {
	var points int
	err := sqlx.GetContext(ctx, q, &points, s.rebind(
		`SELECT COALESCE(points_per_completion, points, ?) FROM habits
		 WHERE user_id = ? AND title = ? ORDER BY id LIMIT 1`), constants.DefaultHabitPoints, owner, title)
	if errors.Is(err, sql.ErrNoRows) {
		return constants.DefaultHabitPoints, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get points of %q: %w", title, err)
	}
	return points, nil
}

func (s *Store) publishHabit(ctx context.Context, op changes.Op, id int64, fields []string) {
	h, found, err := s.GetHabitByID(ctx, id)
	if err != nil || !found {
		return
	}
	c := changes.New(changes.EntityHabit, op, id, h.UserID, h)
	c.Fields = fields
	s.publish(ctx, c)
}
