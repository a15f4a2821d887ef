package models

import (
	"fmt"

	"github.com/julianstephens/habitus/internal/constants"
)

// Field names a writable habit attribute. The value is the column name.
type Field string

const (
	FieldTitle            Field = "title"
	FieldGoal             Field = "goal"
	FieldCategory         Field = "category"
	FieldType             Field = "type"
	FieldPoints           Field = "points"
	FieldTargetValue      Field = "target_value"
	FieldTargetUnit       Field = "target_unit"
	FieldActive           Field = "is_active"
	FieldPagesPerDay      Field = "pages_per_day"
	FieldReminderTimes    Field = "reminder_times"
	FieldDurationMinutes  Field = "duration_minutes"
	FieldDNDMode          Field = "dnd_mode"
	FieldMusicID          Field = "music_id"
	FieldJournalEnabled   Field = "journal_enabled"
	FieldGymDays          Field = "gym_days"
	FieldWaterGoalGlasses Field = "water_goal_glasses"
	FieldOneClickComplete Field = "one_click_complete"
	FieldEnglishMode      Field = "english_mode"
	FieldCodingMode       Field = "coding_mode"
	FieldIcon             Field = "habit_icon"
)

// habitFieldOrder is the canonical column order used when writing.
var habitFieldOrder = []Field{
	FieldTitle, FieldGoal, FieldCategory, FieldType, FieldPoints,
	FieldTargetValue, FieldTargetUnit, FieldActive,
	FieldPagesPerDay, FieldReminderTimes, FieldDurationMinutes, FieldDNDMode,
	FieldMusicID, FieldJournalEnabled, FieldGymDays, FieldWaterGoalGlasses,
	FieldOneClickComplete, FieldEnglishMode, FieldCodingMode, FieldIcon,
}

// ParseField maps a column name to a Field.
func ParseField(name string) (Field, error) {
	for _, f := range habitFieldOrder {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown habit field %q", name)
}

// Null marks a field that the caller explicitly wants cleared.
type Null struct{}

// HabitFields carries only the attributes a caller intends to write.
// A field that was never set is left untouched by updates; a field set to
// Null is written as NULL. The zero value is ready to use.
type HabitFields struct {
	values map[Field]any
}

// NewHabitFields starts an empty field set.
func NewHabitFields() *HabitFields {
	return &HabitFields{}
}

func (f *HabitFields) set(field Field, v any) *HabitFields {
	if f.values == nil {
		f.values = make(map[Field]any)
	}
	f.values[field] = v
	return f
}

func (f *HabitFields) Title(v string) *HabitFields          { return f.set(FieldTitle, v) }
func (f *HabitFields) Goal(v string) *HabitFields           { return f.set(FieldGoal, v) }
func (f *HabitFields) Category(v string) *HabitFields       { return f.set(FieldCategory, v) }
func (f *HabitFields) Type(v HabitType) *HabitFields        { return f.set(FieldType, v) }
func (f *HabitFields) Points(v int) *HabitFields            { return f.set(FieldPoints, v) }
func (f *HabitFields) TargetValue(v float64) *HabitFields   { return f.set(FieldTargetValue, v) }
func (f *HabitFields) TargetUnit(v string) *HabitFields     { return f.set(FieldTargetUnit, v) }
func (f *HabitFields) Active(v bool) *HabitFields           { return f.set(FieldActive, v) }
func (f *HabitFields) PagesPerDay(v int) *HabitFields       { return f.set(FieldPagesPerDay, v) }
func (f *HabitFields) ReminderTimes(v string) *HabitFields  { return f.set(FieldReminderTimes, v) }
func (f *HabitFields) DurationMinutes(v int) *HabitFields   { return f.set(FieldDurationMinutes, v) }
func (f *HabitFields) DNDMode(v bool) *HabitFields          { return f.set(FieldDNDMode, v) }
func (f *HabitFields) MusicID(v int64) *HabitFields         { return f.set(FieldMusicID, v) }
func (f *HabitFields) JournalEnabled(v bool) *HabitFields   { return f.set(FieldJournalEnabled, v) }
func (f *HabitFields) GymDays(v string) *HabitFields        { return f.set(FieldGymDays, v) }
func (f *HabitFields) WaterGoalGlasses(v int) *HabitFields  { return f.set(FieldWaterGoalGlasses, v) }
func (f *HabitFields) OneClickComplete(v bool) *HabitFields { return f.set(FieldOneClickComplete, v) }
func (f *HabitFields) EnglishMode(v bool) *HabitFields      { return f.set(FieldEnglishMode, v) }
func (f *HabitFields) CodingMode(v bool) *HabitFields       { return f.set(FieldCodingMode, v) }
func (f *HabitFields) Icon(v string) *HabitFields           { return f.set(FieldIcon, v) }

// Clear marks field as explicitly NULL.
func (f *HabitFields) Clear(field Field) *HabitFields { return f.set(field, Null{}) }

// Has reports whether field was set, including explicit nulls.
func (f *HabitFields) Has(field Field) bool {
	if f == nil {
		return false
	}
	_, ok := f.values[field]
	return ok
}

// IsNull reports whether field was explicitly cleared.
func (f *HabitFields) IsNull(field Field) bool {
	if f == nil {
		return false
	}
	_, ok := f.values[field].(Null)
	return ok
}

// Get returns the raw value for field.
func (f *HabitFields) Get(field Field) (any, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.values[field]
	return v, ok
}

// Fields returns the set fields in canonical order.
func (f *HabitFields) Fields() []Field {
	if f == nil {
		return nil
	}
	out := make([]Field, 0, len(f.values))
	for _, field := range habitFieldOrder {
		if _, ok := f.values[field]; ok {
			out = append(out, field)
		}
	}
	return out
}

// Len is the number of set fields.
func (f *HabitFields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.values)
}

// Apply copies the set fields onto h. Explicit nulls reset an attribute to
// the value a NULL column reads back as.
func (f *HabitFields) Apply(h *Habit) {
	for _, field := range f.Fields() {
		v := f.values[field]
		_, null := v.(Null)
		switch field {
		case FieldTitle:
			h.Title, _ = v.(string)
		case FieldGoal:
			h.Goal, _ = v.(string)
		case FieldCategory:
			h.Category, _ = v.(string)
		case FieldType:
			h.Type, _ = v.(HabitType)
		case FieldPoints:
			h.Points = constants.DefaultHabitPoints
			if n, ok := v.(int); ok {
				h.Points = n
			}
			h.PointsPerCompletion = h.Points
		case FieldTargetValue:
			h.TargetValue, _ = v.(float64)
		case FieldTargetUnit:
			h.TargetUnit, _ = v.(string)
		case FieldActive:
			if null {
				h.Active = true
			} else {
				h.Active, _ = v.(bool)
			}
		case FieldPagesPerDay:
			h.PagesPerDay = intPtr(v, null)
		case FieldReminderTimes:
			h.ReminderTimes = stringPtr(v, null)
		case FieldDurationMinutes:
			h.DurationMinutes = intPtr(v, null)
		case FieldDNDMode:
			h.DNDMode, _ = v.(bool)
		case FieldMusicID:
			if null {
				h.MusicID = nil
			} else if id, ok := v.(int64); ok {
				h.MusicID = &id
			}
		case FieldJournalEnabled:
			h.JournalEnabled, _ = v.(bool)
		case FieldGymDays:
			h.GymDays = stringPtr(v, null)
		case FieldWaterGoalGlasses:
			h.WaterGoalGlasses = intPtr(v, null)
		case FieldOneClickComplete:
			h.OneClickComplete, _ = v.(bool)
		case FieldEnglishMode:
			h.EnglishMode, _ = v.(bool)
		case FieldCodingMode:
			h.CodingMode, _ = v.(bool)
		case FieldIcon:
			h.Icon = stringPtr(v, null)
		}
	}
}

func intPtr(v any, null bool) *int {
	if null {
		return nil
	}
	if n, ok := v.(int); ok {
		return &n
	}
	return nil
}

func stringPtr(v any, null bool) *string {
	if null {
		return nil
	}
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}
