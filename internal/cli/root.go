package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/julianstephens/habitus/internal/changes"
	"github.com/julianstephens/habitus/internal/config"
	"github.com/julianstephens/habitus/internal/logger"
	"github.com/julianstephens/habitus/internal/session"
	"github.com/julianstephens/habitus/internal/storage"
	"github.com/julianstephens/habitus/internal/storage/postgres"
	"github.com/julianstephens/habitus/internal/storage/sqlite"
)

// ErrAborted is returned when the user declines a confirmation.
var ErrAborted = errors.New("aborted")

// stdin is shared so consecutive prompts on piped input see every line.
var stdin = bufio.NewReader(os.Stdin)

// Context is passed to every command's Run method.
type Context struct {
	Ctx       context.Context
	Config    config.Config
	ConfigDir string
	Sessions  session.Store
	Sink      changes.Sink
	Out       io.Writer

	// Confirm asks a yes/no question. Password reads a secret without echo.
	Confirm  func(title string) (bool, error)
	Password func(prompt string) (string, error)

	journal *os.File
}

// NewContext wires the session backend and change journal for cfg.
func NewContext(ctx context.Context, cfg config.Config, dir string) (*Context, error) {
	sessions, err := session.NewStore(cfg.SessionBackend, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to set up sessions: %w", err)
	}
	c := &Context{
		Ctx:       ctx,
		Config:    cfg,
		ConfigDir: dir,
		Sessions:  sessions,
		Sink:      changes.Discard,
		Out:       os.Stdout,
		Confirm:   confirm,
		Password:  readPassword,
	}
	if cfg.Journal != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal), 0700); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Journal, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open change journal: %w", err)
		}
		c.journal = f
		c.Sink = changes.NewJournal(f)
	}
	return c, nil
}

// Close releases the change journal.
func (c *Context) Close() error {
	if c.journal == nil {
		return nil
	}
	err := c.journal.Close()
	c.journal = nil
	return err
}

// Factory returns a store factory for the configured database. progress
// receives migration messages and may be nil.
func (c *Context) Factory(progress func(string)) *storage.Factory {
	if c.Config.IsPostgres() {
		return postgres.Factory(postgres.Options{
			ConnString: c.Config.ConnString(),
			Sessions:   c.Sessions,
			Sink:       c.Sink,
			Progress:   progress,
		})
	}
	return sqlite.Factory(sqlite.Options{
		Path:            c.Config.Database,
		Sessions:        c.Sessions,
		Sink:            c.Sink,
		BackupRetention: c.Config.BackupRetention,
		Progress:        progress,
	})
}

// Use runs fn against a freshly opened store and releases it afterwards.
func (c *Context) Use(fn func(*storage.Store) error) error {
	return c.Factory(func(msg string) { logger.Debug(msg) }).Use(c.Ctx, fn)
}

// DBPath is the SQLite file, or an error for server-backed stores.
func (c *Context) DBPath() (string, error) {
	if c.Config.IsPostgres() {
		return "", errors.New("this command only supports SQLite storage")
	}
	return c.Config.Database, nil
}

// Confirmed asks title unless yes is already set.
func (c *Context) Confirmed(title string, yes bool) error {
	if yes {
		return nil
	}
	ok, err := c.Confirm(title)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAborted
	}
	return nil
}

func (c *Context) Printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

func (c *Context) Println(args ...any) {
	fmt.Fprintln(c.Out, args...)
}

func confirm(title string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errors.New("confirmation required; rerun with --yes")
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	// piped input, e.g. in scripts
	line, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
