// Package clitest builds command contexts backed by a temporary SQLite store.
package clitest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/julianstephens/habitus/internal/changes"
	"github.com/julianstephens/habitus/internal/cli"
	"github.com/julianstephens/habitus/internal/config"
)

// Env is a command context plus handles to inspect what commands did.
type Env struct {
	*cli.Context
	Buf      *bytes.Buffer
	Recorder *changes.Recorder
	// Answer is returned by the confirmation prompt.
	Answer bool
	// Passwords are handed out in order by the password prompt.
	Passwords []string
}

// New returns a context whose database and session file live in a temp dir.
func New(t *testing.T) *Env {
	t.Helper()
	dir := t.TempDir()
	ctx, err := cli.NewContext(context.Background(), config.Default(dir), dir)
	if err != nil {
		t.Fatalf("failed to create context: %v", err)
	}
	t.Cleanup(func() { ctx.Close() })

	env := &Env{Context: ctx, Buf: &bytes.Buffer{}, Recorder: &changes.Recorder{}, Answer: true}
	ctx.Out = env.Buf
	ctx.Sink = env.Recorder
	ctx.Confirm = func(string) (bool, error) { return env.Answer, nil }
	ctx.Password = func(string) (string, error) {
		if len(env.Passwords) == 0 {
			return "", errors.New("no password queued")
		}
		pw := env.Passwords[0]
		env.Passwords = env.Passwords[1:]
		return pw, nil
	}
	return env
}

// Output returns and resets what commands printed.
func (e *Env) Output() string {
	out := e.Buf.String()
	e.Buf.Reset()
	return out
}
