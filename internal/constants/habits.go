package constants

const (
	// DefaultHabitPoints is what a completion is worth when no habit matches the title.
	DefaultHabitPoints = 10

	// DefaultUserEmail identifies the user synthesized when a single-user store
	// is upgraded to the multi-user schema.
	DefaultUserEmail = "default@local.com"

	// NoHabitID is returned by title lookups that match nothing.
	NoHabitID int64 = -1

	// LegacySecondsThreshold separates epoch seconds written by old releases
	// from epoch milliseconds. 1e11 ms is March 1973; 1e11 s is year 5138.
	LegacySecondsThreshold int64 = 100_000_000_000
)
