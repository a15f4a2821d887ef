package habits

import (
	"strings"

	"github.com/julianstephens/habitus/internal/models"
)

// AttrFlags are the optional habit attributes shared by add and edit. Nil
// means the flag was not given.
type AttrFlags struct {
	Goal          *string  `help:"Goal description."`
	Category      *string  `help:"Category."`
	Points        *int     `help:"Points per completion."`
	TargetValue   *float64 `help:"Numeric target, e.g. 5 for 5 km."`
	TargetUnit    *string  `help:"Unit of the target value."`
	Icon          *string  `help:"Icon name."`
	PagesPerDay   *int     `help:"Pages per day (READ habits)."`
	ReminderTimes *string  `help:"Reminder times, e.g. 07:00,21:00."`
	Duration      *int     `help:"Duration in minutes."`
	GymDays       *string  `help:"Gym days, e.g. mon,wed,fri."`
	WaterGlasses  *int     `help:"Glasses of water per day."`
	MusicID       *int64   `help:"Music track id."`
	DND           *bool    `name:"dnd" help:"Enable do-not-disturb mode (true or false)."`
	Journal       *bool    `help:"Enable journaling (true or false)."`
	OneClick      *bool    `help:"Complete with one click (true or false)."`
	English       *bool    `help:"Enable English mode (true or false)."`
	Coding        *bool    `help:"Enable coding mode (true or false)."`
	Active        *bool    `help:"Mark the habit active (true or false)."`
}

func (a AttrFlags) apply(f *models.HabitFields) {
	if a.Goal != nil {
		f.Goal(*a.Goal)
	}
	if a.Category != nil {
		f.Category(*a.Category)
	}
	if a.Points != nil {
		f.Points(*a.Points)
	}
	if a.TargetValue != nil {
		f.TargetValue(*a.TargetValue)
	}
	if a.TargetUnit != nil {
		f.TargetUnit(*a.TargetUnit)
	}
	if a.Icon != nil {
		f.Icon(*a.Icon)
	}
	if a.PagesPerDay != nil {
		f.PagesPerDay(*a.PagesPerDay)
	}
	if a.ReminderTimes != nil {
		f.ReminderTimes(*a.ReminderTimes)
	}
	if a.Duration != nil {
		f.DurationMinutes(*a.Duration)
	}
	if a.GymDays != nil {
		f.GymDays(*a.GymDays)
	}
	if a.WaterGlasses != nil {
		f.WaterGoalGlasses(*a.WaterGlasses)
	}
	if a.MusicID != nil {
		f.MusicID(*a.MusicID)
	}
	if a.DND != nil {
		f.DNDMode(*a.DND)
	}
	if a.Journal != nil {
		f.JournalEnabled(*a.Journal)
	}
	if a.OneClick != nil {
		f.OneClickComplete(*a.OneClick)
	}
	if a.English != nil {
		f.EnglishMode(*a.English)
	}
	if a.Coding != nil {
		f.CodingMode(*a.Coding)
	}
	if a.Active != nil {
		f.Active(*a.Active)
	}
}

func parseType(s string) (models.HabitType, error) {
	return models.ParseHabitType(strings.ToUpper(strings.TrimSpace(s)))
}
