package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/habitus/internal/changes"
	"github.com/julianstephens/habitus/internal/models"
)

// AddScore appends a ledger entry for the acting user.
func (s *Store) AddScore(ctx context.Context, habitTitle string, points int) (int64, error) {
	return s.AddScoreWithNote(ctx, habitTitle, points, "")
}

// AddScoreWithNote is AddScore with a free-form note.
func (s *Store) AddScoreWithNote(ctx context.Context, habitTitle string, points int, note string) (int64, error) {
	if strings.TrimSpace(habitTitle) == "" {
		return 0, &ConstraintError{Table: "scores", Column: "habit_title", Reason: "is required"}
	}
	owner, err := s.ActingUser(ctx)
	if err != nil {
		return 0, err
	}

	entry := models.ScoreEntry{UserID: owner, HabitTitle: habitTitle, Points: points, Note: note}
	if err := s.insertScore(ctx, s.db, &entry); err != nil {
		return 0, err
	}
	s.publishScore(ctx, entry)
	return entry.ID, nil
}

// insertScore writes e and fills in its id and date.
func (s *Store) insertScore(ctx context.Context, q sqlx.QueryerContext, e *models.ScoreEntry) error {
	var note any
	if e.Note != "" {
		note = e.Note
	}
	at := s.nowMillis()
	err := sqlx.GetContext(ctx, q, &e.ID, s.rebind(
		`INSERT INTO scores (user_id, habit_title, points, date, note) VALUES (?, ?, ?, ?, ?) RETURNING id`),
		e.UserID, e.HabitTitle, e.Points, at, note)
	if err != nil {
		return s.classify("scores", "", fmt.Errorf("failed to add score for %q: %w", e.HabitTitle, err))
	}
	e.Date = time.UnixMilli(at).UTC()
	return nil
}

// GetTotalScore sums the acting user's points; 0 when there are none.
func (s *Store) GetTotalScore(ctx context.Context) (int, error) {
	owner, err := s.ActingUser(ctx)
	if err != nil {
		return 0, err
	}
	var total int
	if err := s.db.GetContext(ctx, &total, s.rebind(
		`SELECT COALESCE(SUM(points), 0) FROM scores WHERE user_id = ?`), owner); err != nil {
		return 0, fmt.Errorf("failed to total scores: %w", err)
	}
	return total, nil
}

// GetAllScores returns the acting user's entries, most recent first.
func (s *Store) GetAllScores(ctx context.Context) ([]models.ScoreEntry, error) {
	owner, err := s.ActingUser(ctx)
	if err != nil {
		return nil, err
	}
	var rows []scoreRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT `+scoreColumns+` FROM scores WHERE user_id = ? ORDER BY date DESC, id DESC`), owner); err != nil {
		return nil, fmt.Errorf("failed to get scores: %w", err)
	}
	entries := make([]models.ScoreEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.model()
	}
	return entries, nil
}

// CompleteHabit marks the acting user's habit titled title as completed and
// records a score worth its points, in one transaction. It returns ErrNotFound
// when the user has no such habit.
func (s *Store) CompleteHabit(ctx context.Context, title string) (models.ScoreEntry, error) {
	owner, err := s.ActingUser(ctx)
	if err != nil {
		return models.ScoreEntry{}, err
	}

	var (
		ids   []int64
		entry = models.ScoreEntry{UserID: owner, HabitTitle: title}
	)
	err = s.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if ids, err = s.setCompleted(ctx, tx, owner, title, true); err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("habit %q: %w", title, ErrNotFound)
		}
		if entry.Points, err = s.habitPoints(ctx, tx, owner, title); err != nil {
			return err
		}
		return s.insertScore(ctx, tx, &entry)
	})
	if err != nil {
		return models.ScoreEntry{}, fmt.Errorf("failed to complete %q: %w", title, err)
	}

	for _, id := range ids {
		s.publishHabit(ctx, changes.OpUpdate, id, []string{"completed"})
	}
	s.publishScore(ctx, entry)
	return entry, nil
}

func (s *Store) publishScore(ctx context.Context, e models.ScoreEntry) {
	s.publish(ctx, changes.New(changes.EntityScore, changes.OpCreate, e.ID, e.UserID, e))
}
