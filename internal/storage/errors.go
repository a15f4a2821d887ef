package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrConstraintViolation covers unique and required-field violations.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrNotFound is returned by operations that need an existing row to act on.
	// Plain lookups report absence with a boolean instead.
	ErrNotFound = errors.New("not found")
	// ErrDataCorruption marks a stored value outside its domain.
	ErrDataCorruption = errors.New("data corruption")
	// ErrTransactionFailure marks a multi-statement operation that rolled back.
	ErrTransactionFailure = errors.New("transaction failed")
)

// ConstraintError reports which table and column rejected a write.
type ConstraintError struct {
	Table  string
	Column string
	Reason string
	Err    error
}

func (e *ConstraintError) Error() string {
	msg := fmt.Sprintf("%s: %s.%s", ErrConstraintViolation, e.Table, e.Column)
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConstraintError) Is(target error) bool { return target == ErrConstraintViolation }
func (e *ConstraintError) Unwrap() error        { return e.Err }

// CorruptionError reports the row and column holding an unexpected value.
type CorruptionError struct {
	Table  string
	ID     int64
	Column string
	Value  any
	Err    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%s: %s #%d has invalid %s %v: %v", ErrDataCorruption, e.Table, e.ID, e.Column, e.Value, e.Err)
}

func (e *CorruptionError) Is(target error) bool { return target == ErrDataCorruption }
func (e *CorruptionError) Unwrap() error        { return e.Err }

func txFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransactionFailure, op, err)
}

// classify turns engine constraint errors into ConstraintError.
func (s *Store) classify(table, column string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return err
	}
	if s.dialect.IsConstraintViolation(err) {
		return &ConstraintError{Table: table, Column: column, Err: err}
	}
	return err
}
