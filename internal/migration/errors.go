package migration

import (
	"errors"
	"fmt"

	"github.com/julianstephens/habitus/internal/schema"
)

var (
	// ErrStepSkipped marks an additive step whose target already exists.
	// The engine logs it and moves on; callers never see it.
	ErrStepSkipped = errors.New("migration step skipped")
	// ErrFatal marks any other migration failure. The store must not be opened.
	ErrFatal = errors.New("migration failed")
)

// Error reports the version and step that stopped a migration.
type Error struct {
	Version int
	Step    schema.Step
	Err     error
}

func (e *Error) Error() string {
	if e.Step != nil {
		return fmt.Sprintf("migration to version %d failed at %q: %v", e.Version, e.Step, e.Err)
	}
	return fmt.Sprintf("migration to version %d failed: %v", e.Version, e.Err)
}

// Unwrap exposes both ErrFatal and the underlying cause.
func (e *Error) Unwrap() []error {
	return []error{ErrFatal, e.Err}
}

func fatal(version int, step schema.Step, err error) error {
	return &Error{Version: version, Step: step, Err: err}
}
