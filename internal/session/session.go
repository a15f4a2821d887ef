// Package session carries the acting user. A request-scoped value in the
// context wins; otherwise the store falls back to the persisted session and
// finally to the default user.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/keyring"
)

type ctxKey struct{}

// WithUser returns a context acting as userID.
func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// FromContext returns the user set by WithUser.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKey{}).(int64)
	return id, ok
}

// Store persists the logged-in user between processes.
type Store interface {
	Load() (userID int64, ok bool, err error)
	Save(userID int64) error
	Clear() error
}

// None never has a session.
type None struct{}

func (None) Load() (int64, bool, error) { return 0, false, nil }
func (None) Save(int64) error           { return errors.New("no session backend configured") }
func (None) Clear() error               { return nil }

type fileSession struct {
	UserID   int64     `json:"user_id"`
	LoggedIn time.Time `json:"logged_in_at"`
}

// FileStore keeps the session in a small JSON file.
type FileStore struct {
	Path string
}

func (f FileStore) Load() (int64, bool, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read session: %w", err)
	}
	var s fileSession
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, false, fmt.Errorf("failed to parse session %s: %w", f.Path, err)
	}
	if s.UserID <= 0 {
		return 0, false, nil
	}
	return s.UserID, true, nil
}

func (f FileStore) Save(userID int64) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.Marshal(fileSession{UserID: userID, LoggedIn: time.Now().UTC()})
	if err != nil {
		return err
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return os.Rename(tmp, f.Path)
}

func (f FileStore) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// KeyringStore keeps the session in the OS keyring.
type KeyringStore struct{}

func (KeyringStore) Load() (int64, bool, error) {
	v, err := keyring.Get(constants.KeyringSessionUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid session in keyring: %w", err)
	}
	return id, true, nil
}

func (KeyringStore) Save(userID int64) error {
	return keyring.Set(constants.KeyringSessionUser, strconv.FormatInt(userID, 10))
}

func (KeyringStore) Clear() error {
	if err := keyring.Delete(constants.KeyringSessionUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// NewStore picks a backend by name. dir is where the file backend writes.
func NewStore(backend, dir string) (Store, error) {
	switch backend {
	case "", constants.SessionBackendFile:
		return FileStore{Path: filepath.Join(dir, constants.DefaultSessionFile)}, nil
	case constants.SessionBackendKeyring:
		if !keyring.IsAvailable() {
			return nil, keyring.ErrKeyringUnavailable
		}
		return KeyringStore{}, nil
	case "none":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", backend)
	}
}
