package storage

import (
	"database/sql"
	"time"

	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/models"
)

const userColumns = `user_id, email, password_hash, created_at, is_active`

type userRow struct {
	ID           int64          `db:"user_id"`
	Email        sql.NullString `db:"email"`
	PasswordHash sql.NullString `db:"password_hash"`
	CreatedAt    sql.NullInt64  `db:"created_at"`
	Active       sql.NullInt64  `db:"is_active"`
}

func (r userRow) model() models.User {
	return models.User{
		ID:           r.ID,
		Email:        r.Email.String,
		PasswordHash: r.PasswordHash.String,
		CreatedAt:    fromMillis(r.CreatedAt),
		Active:       boolOr(r.Active, true),
	}
}

const habitColumns = `id, user_id, title, goal, category, type, completed, points,
	points_per_completion, target_value, target_unit, created_at, is_active,
	pages_per_day, reminder_times, duration_minutes, dnd_mode, music_id,
	journal_enabled, gym_days, water_goal_glasses, one_click_complete,
	english_mode, coding_mode, habit_icon`

type habitRow struct {
	ID                  int64           `db:"id"`
	UserID              sql.NullInt64   `db:"user_id"`
	Title               string          `db:"title"`
	Goal                sql.NullString  `db:"goal"`
	Category            sql.NullString  `db:"category"`
	Type                sql.NullString  `db:"type"`
	Completed           sql.NullInt64   `db:"completed"`
	Points              sql.NullInt64   `db:"points"`
	PointsPerCompletion sql.NullInt64   `db:"points_per_completion"`
	TargetValue         sql.NullFloat64 `db:"target_value"`
	TargetUnit          sql.NullString  `db:"target_unit"`
	CreatedAt           sql.NullInt64   `db:"created_at"`
	Active              sql.NullInt64   `db:"is_active"`
	PagesPerDay         sql.NullInt64   `db:"pages_per_day"`
	ReminderTimes       sql.NullString  `db:"reminder_times"`
	DurationMinutes     sql.NullInt64   `db:"duration_minutes"`
	DNDMode             sql.NullInt64   `db:"dnd_mode"`
	MusicID             sql.NullInt64   `db:"music_id"`
	JournalEnabled      sql.NullInt64   `db:"journal_enabled"`
	GymDays             sql.NullString  `db:"gym_days"`
	WaterGoalGlasses    sql.NullInt64   `db:"water_goal_glasses"`
	OneClickComplete    sql.NullInt64   `db:"one_click_complete"`
	EnglishMode         sql.NullInt64   `db:"english_mode"`
	CodingMode          sql.NullInt64   `db:"coding_mode"`
	Icon                sql.NullString  `db:"habit_icon"`
}

// model converts the row. An unknown type is corruption, never a default.
func (r habitRow) model() (models.Habit, error) {
	t, err := models.ParseHabitType(r.Type.String)
	if err != nil {
		return models.Habit{}, &CorruptionError{Table: "habits", ID: r.ID, Column: "type", Value: r.Type.String, Err: err}
	}

	points := int(intOr(r.Points, constants.DefaultHabitPoints))
	return models.Habit{
		ID:                  r.ID,
		UserID:              r.UserID.Int64,
		Title:               r.Title,
		Goal:                r.Goal.String,
		Category:            r.Category.String,
		Type:                t,
		Completed:           boolOr(r.Completed, false),
		Points:              points,
		PointsPerCompletion: int(intOr(r.PointsPerCompletion, int64(points))),
		TargetValue:         r.TargetValue.Float64,
		TargetUnit:          r.TargetUnit.String,
		CreatedAt:           fromMillis(r.CreatedAt),
		Active:              boolOr(r.Active, true),
		PagesPerDay:         intPtr(r.PagesPerDay),
		ReminderTimes:       stringPtr(r.ReminderTimes),
		DurationMinutes:     intPtr(r.DurationMinutes),
		DNDMode:             boolOr(r.DNDMode, false),
		MusicID:             int64Ptr(r.MusicID),
		JournalEnabled:      boolOr(r.JournalEnabled, false),
		GymDays:             stringPtr(r.GymDays),
		WaterGoalGlasses:    intPtr(r.WaterGoalGlasses),
		OneClickComplete:    boolOr(r.OneClickComplete, false),
		EnglishMode:         boolOr(r.EnglishMode, false),
		CodingMode:          boolOr(r.CodingMode, false),
		Icon:                stringPtr(r.Icon),
	}, nil
}

const scoreColumns = `id, user_id, habit_id, habit_title, points, date, note`

type scoreRow struct {
	ID         int64          `db:"id"`
	UserID     sql.NullInt64  `db:"user_id"`
	HabitID    sql.NullInt64  `db:"habit_id"`
	HabitTitle string         `db:"habit_title"`
	Points     int64          `db:"points"`
	Date       sql.NullInt64  `db:"date"`
	Note       sql.NullString `db:"note"`
}

func (r scoreRow) model() models.ScoreEntry {
	return models.ScoreEntry{
		ID:         r.ID,
		UserID:     r.UserID.Int64,
		HabitID:    int64Ptr(r.HabitID),
		HabitTitle: r.HabitTitle,
		Points:     int(r.Points),
		Date:       fromMillis(r.Date),
		Note:       r.Note.String,
	}
}

// fromMillis reads a stored timestamp. Values below the legacy threshold were
// written in seconds by old releases.
func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid || v.Int64 == 0 {
		return time.Time{}
	}
	if v.Int64 < constants.LegacySecondsThreshold {
		return time.Unix(v.Int64, 0).UTC()
	}
	return time.UnixMilli(v.Int64).UTC()
}

func boolOr(v sql.NullInt64, def bool) bool {
	if !v.Valid {
		return def
	}
	return v.Int64 != 0
}

func intOr(v sql.NullInt64, def int64) int64 {
	if !v.Valid {
		return def
	}
	return v.Int64
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// columnValue converts a HabitFields value into a driver argument.
func columnValue(v any) any {
	switch v := v.(type) {
	case models.Null:
		return nil
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	case models.HabitType:
		return string(v)
	case int:
		return int64(v)
	default:
		return v
	}
}
