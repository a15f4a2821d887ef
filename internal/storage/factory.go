package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/julianstephens/habitus/internal/logger"
)

// OpenFunc opens and migrates a store.
type OpenFunc func(ctx context.Context) (*Store, error)

// Factory hands out store handles that must be released after use.
type Factory struct {
	open OpenFunc
}

func NewFactory(open OpenFunc) *Factory {
	return &Factory{open: open}
}

// Acquire opens a handle. The caller must call release exactly once.
func (f *Factory) Acquire(ctx context.Context) (s *Store, release func() error, err error) {
	s, err = f.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	released := false
	release = func() error {
		if released {
			return nil
		}
		released = true
		return s.Close()
	}
	return s, release, nil
}

// Use runs fn with a handle and releases it on every exit path, including panics.
func (f *Factory) Use(ctx context.Context, fn func(*Store) error) (err error) {
	s, release, err := f.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := release(); cerr != nil {
			logger.Warn("Failed to release store", "error", cerr)
			if err == nil {
				err = fmt.Errorf("failed to release store: %w", cerr)
			} else {
				err = errors.Join(err, cerr)
			}
		}
	}()
	return fn(s)
}
