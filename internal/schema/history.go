package schema

import "github.com/julianstephens/habitus/internal/constants"

const (
	TableUsers  = "users"
	TableHabits = "habits"
	TableScores = "scores"

	// DefaultUserBinding names the id of the synthetic owner of pre-multi-user rows.
	DefaultUserBinding Binding = "default_user_id"
)

func pk(name string) Column { return Column{Name: name, Type: Integer, PrimaryKey: true} }

func col(name string, t ColumnType) Column { return Column{Name: name, Type: t} }

func colDefault(name string, t ColumnType, def Value) Column {
	return Column{Name: name, Type: t, Default: def}
}

func required(name string, t ColumnType) Column {
	return Column{Name: name, Type: t, NotNull: true}
}

var userFK = &ForeignKey{Table: TableUsers, Column: "user_id"}

var history = []Version{
	{
		Number: 1,
		Name:   "habits and scores",
		Steps: []Step{
			CreateTable{Table: Table{Name: TableHabits, Columns: []Column{
				pk("id"),
				required("title", Text),
				col("goal", Text),
				col("category", Text),
				required("type", Text),
				colDefault("completed", Integer, Literal{0}),
				colDefault("points", Integer, Literal{constants.DefaultHabitPoints}),
				colDefault("created_at", Integer, Now{}),
			}}},
			CreateTable{Table: Table{Name: TableScores, Columns: []Column{
				pk("id"),
				{Name: "habit_id", Type: Integer, References: &ForeignKey{Table: TableHabits, Column: "id"}},
				required("habit_title", Text),
				required("points", Integer),
				colDefault("date", Integer, Now{}),
			}}},
		},
	},
	{
		Number: 2,
		Name:   "habit targets",
		Steps: []Step{
			AddColumn{Table: TableHabits, Column: colDefault("target_value", Real, Literal{0})},
			AddColumn{Table: TableHabits, Column: col("target_unit", Text)},
		},
	},
	{
		Number: 3,
		Name:   "type-specific habit attributes",
		Steps: []Step{
			AddColumn{Table: TableHabits, Column: col("pages_per_day", Integer)},
			AddColumn{Table: TableHabits, Column: col("reminder_times", Text)},
			AddColumn{Table: TableHabits, Column: col("duration_minutes", Integer)},
			AddColumn{Table: TableHabits, Column: colDefault("dnd_mode", Integer, Literal{0})},
			AddColumn{Table: TableHabits, Column: col("music_id", Integer)},
			AddColumn{Table: TableHabits, Column: colDefault("journal_enabled", Integer, Literal{0})},
			AddColumn{Table: TableHabits, Column: col("gym_days", Text)},
			AddColumn{Table: TableHabits, Column: col("water_goal_glasses", Integer)},
			AddColumn{Table: TableHabits, Column: colDefault("one_click_complete", Integer, Literal{0})},
			AddColumn{Table: TableHabits, Column: colDefault("english_mode", Integer, Literal{0})},
			AddColumn{Table: TableHabits, Column: colDefault("coding_mode", Integer, Literal{0})},
		},
	},
	{
		Number: 4,
		Name:   "habit icons",
		Steps: []Step{
			AddColumn{Table: TableHabits, Column: col("habit_icon", Text)},
		},
	},
	{
		Number: 5,
		Name:   "multi-user",
		Steps: []Step{
			CreateTable{Table: Table{Name: TableUsers, Columns: []Column{
				pk("user_id"),
				{Name: "email", Type: Text, Unique: true},
				col("password_hash", Text),
				col("created_at", Integer),
				colDefault("is_active", Integer, Literal{1}),
			}}},
			BackfillRow{
				Table: TableUsers,
				Key:   []string{"email"},
				Values: []Assignment{
					{Column: "email", Value: Literal{constants.DefaultUserEmail}},
					{Column: "is_active", Value: Literal{1}},
					{Column: "created_at", Value: Now{}},
				},
				CaptureAs: DefaultUserBinding,
			},
			AddColumn{Table: TableHabits, Column: Column{
				Name: "user_id", Type: Integer, Default: DefaultUserBinding, References: userFK,
			}},
			AddColumn{Table: TableHabits, Column: colDefault("is_active", Integer, Literal{1})},
			AddColumn{Table: TableHabits, Column: colDefault("points_per_completion", Integer, Literal{constants.DefaultHabitPoints})},
			BackfillColumnFromColumn{Table: TableHabits, Dst: "points_per_completion", Src: "points"},
			AddColumn{Table: TableScores, Column: Column{
				Name: "user_id", Type: Integer, Default: DefaultUserBinding, References: userFK,
			}},
			AddColumn{Table: TableScores, Column: col("note", Text)},
		},
	},
}

var defaultRegistry = MustNew(history...)

// Default is the registry for the habit store.
func Default() *Registry {
	return defaultRegistry
}
