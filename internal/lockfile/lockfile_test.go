package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ps "github.com/mitchellh/go-ps"
)

type mockProcess struct {
	pid        int
	executable string
}

func (p *mockProcess) Pid() int           { return p.pid }
func (p *mockProcess) PPid() int          { return 0 }
func (p *mockProcess) Executable() string { return p.executable }

// withProcesses makes only the given pids look alive.
func withProcesses(t *testing.T, pids ...int) {
	t.Helper()
	old := findProcessFunc
	t.Cleanup(func() { findProcessFunc = old })
	findProcessFunc = func(pid int) (ps.Process, error) {
		for _, p := range pids {
			if p == pid {
				return &mockProcess{pid: pid, executable: "habitus"}, nil
			}
		}
		return nil, nil
	}
}

func TestAcquireAndRelease(t *testing.T) {
	withProcesses(t, os.Getpid())
	path := filepath.Join(t.TempDir(), "nested", "habitus.lock")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("lockfile not written: %v", err)
	}
	if !strings.HasSuffix(string(content), "|habitus") {
		t.Errorf("unexpected lockfile content %q", content)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lockfile still exists after release")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
}

func TestAcquireHeldByLiveProcess(t *testing.T) {
	withProcesses(t, os.Getpid(), 4242)
	path := filepath.Join(t.TempDir(), "habitus.lock")
	if err := os.WriteFile(path, []byte("4242|habitus"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Acquire(path)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if content, _ := os.ReadFile(path); string(content) != "4242|habitus" {
		t.Errorf("lockfile of live holder was modified: %q", content)
	}
}

func TestAcquireReplacesStaleLock(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"dead process", "4242|habitus"},
		{"malformed", "not-a-pid"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withProcesses(t, os.Getpid())
			path := filepath.Join(t.TempDir(), "habitus.lock")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			lock, err := Acquire(path)
			if err != nil {
				t.Fatalf("Acquire failed: %v", err)
			}
			defer lock.Release()

			pid, err := holder(path)
			if err != nil {
				t.Fatalf("holder: %v", err)
			}
			if pid != os.Getpid() {
				t.Errorf("lock held by %d, want %d", pid, os.Getpid())
			}
		})
	}
}

func TestAcquireTwiceInProcess(t *testing.T) {
	withProcesses(t, os.Getpid())
	path := filepath.Join(t.TempDir(), "habitus.lock")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	if _, err := Acquire(path); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked on second acquire, got %v", err)
	}
}
