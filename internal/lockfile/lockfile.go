// Package lockfile keeps two habitus processes from migrating or restoring
// the local database at the same time.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ps "github.com/mitchellh/go-ps"

	"github.com/julianstephens/habitus/internal/logger"
)

var (
	ErrLocked = errors.New("database is in use by another habitus process")

	findProcessFunc = ps.FindProcess
	getpid          = os.Getpid
)

// Lock is a held lockfile.
type Lock struct {
	path string
}

// Acquire creates the lockfile at path holding "pid|executable". A lockfile
// left by a process that is no longer running is replaced.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d|%s", getpid(), executable())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("failed to write lockfile: %w", errors.Join(werr, cerr))
			}
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lockfile: %w", err)
		}

		pid, err := holder(path)
		if err != nil {
			logger.Warn("Removing unreadable lockfile", "path", path, "error", err)
		} else if alive(pid) {
			return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
		} else {
			logger.Warn("Removing stale lockfile", "path", path, "pid", pid)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale lockfile: %w", err)
		}
	}
	return nil, ErrLocked
}

// Release removes the lockfile. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	path := l.path
	l.path = ""
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to release lockfile: %w", err)
	}
	return nil
}

func holder(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pidStr, _, _ := strings.Cut(strings.TrimSpace(string(content)), "|")
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, errors.New("invalid process ID in lockfile")
	}
	return pid, nil
}

func alive(pid int) bool {
	p, err := findProcessFunc(pid)
	return err == nil && p != nil
}

func executable() string {
	p, err := findProcessFunc(getpid())
	if err != nil || p == nil {
		return filepath.Base(os.Args[0])
	}
	return p.Executable()
}
