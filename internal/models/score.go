package models

import "time"

// ScoreEntry is one row of the append-only points ledger.
type ScoreEntry struct {
	ID         int64     `json:"id" yaml:"id"`
	UserID     int64     `json:"user_id" yaml:"user_id"`
	HabitID    *int64    `json:"habit_id,omitempty" yaml:"habit_id,omitempty"`
	HabitTitle string    `json:"habit_title" yaml:"habit_title"`
	Points     int       `json:"points" yaml:"points"`
	Date       time.Time `json:"date" yaml:"date"`
	Note       string    `json:"note,omitempty" yaml:"note,omitempty"`
}

// TotalPoints sums the points of entries.
func TotalPoints(entries []ScoreEntry) int {
	total := 0
	for _, e := range entries {
		total += e.Points
	}
	return total
}
