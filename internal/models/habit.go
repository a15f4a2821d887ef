package models

import (
	"fmt"
	"time"
)

// HabitType is the closed set of habit kinds. It is persisted as the literal name.
type HabitType string

const (
	HabitExercise HabitType = "EXERCISE"
	HabitWalk     HabitType = "WALK"
	HabitDemo     HabitType = "DEMO"
	HabitRead     HabitType = "READ"
)

// HabitTypes lists every valid HabitType in declaration order.
var HabitTypes = []HabitType{HabitExercise, HabitWalk, HabitDemo, HabitRead}

// ParseHabitType converts a stored or user-supplied name into a HabitType.
// Matching is exact; unknown names are an error rather than a default.
func ParseHabitType(s string) (HabitType, error) {
	for _, t := range HabitTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown habit type %q", s)
}

func (t HabitType) Valid() bool {
	_, err := ParseHabitType(string(t))
	return err == nil
}

func (t HabitType) String() string { return string(t) }

// Habit represents a tracked practice owned by exactly one user.
type Habit struct {
	ID                  int64     `json:"id" yaml:"id"`
	UserID              int64     `json:"user_id" yaml:"user_id"`
	Title               string    `json:"title" yaml:"title"`
	Goal                string    `json:"goal,omitempty" yaml:"goal,omitempty"`
	Category            string    `json:"category,omitempty" yaml:"category,omitempty"`
	Type                HabitType `json:"type" yaml:"type"`
	Completed           bool      `json:"completed" yaml:"completed"`
	Points              int       `json:"points" yaml:"points"`
	PointsPerCompletion int       `json:"points_per_completion" yaml:"points_per_completion"`
	TargetValue         float64   `json:"target_value" yaml:"target_value"`
	TargetUnit          string    `json:"target_unit,omitempty" yaml:"target_unit,omitempty"`
	CreatedAt           time.Time `json:"created_at" yaml:"created_at"`
	Active              bool      `json:"is_active" yaml:"is_active"`

	// Type-specific attributes. Pointers are nil when never set.
	PagesPerDay      *int    `json:"pages_per_day,omitempty" yaml:"pages_per_day,omitempty"`
	ReminderTimes    *string `json:"reminder_times,omitempty" yaml:"reminder_times,omitempty"`
	DurationMinutes  *int    `json:"duration_minutes,omitempty" yaml:"duration_minutes,omitempty"`
	DNDMode          bool    `json:"dnd_mode" yaml:"dnd_mode"`
	MusicID          *int64  `json:"music_id,omitempty" yaml:"music_id,omitempty"`
	JournalEnabled   bool    `json:"journal_enabled" yaml:"journal_enabled"`
	GymDays          *string `json:"gym_days,omitempty" yaml:"gym_days,omitempty"`
	WaterGoalGlasses *int    `json:"water_goal_glasses,omitempty" yaml:"water_goal_glasses,omitempty"`
	OneClickComplete bool    `json:"one_click_complete" yaml:"one_click_complete"`
	EnglishMode      bool    `json:"english_mode" yaml:"english_mode"`
	CodingMode       bool    `json:"coding_mode" yaml:"coding_mode"`
	Icon             *string `json:"habit_icon,omitempty" yaml:"habit_icon,omitempty"`
}
