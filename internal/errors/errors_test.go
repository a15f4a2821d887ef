package errors

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"simple error", errors.New("habit not found"), "Error: habit not found"},
		{"wrapped error", fmt.Errorf("failed to complete %q: %w", "Leer", errors.New("not found")), `Error: failed to complete "Leer": not found`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.err); got != tt.expected {
				t.Errorf("Format(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestFormatf(t *testing.T) {
	got := Formatf("schema version %d is newer than %d", 7, 5)
	if want := "Error: schema version 7 is newer than 5"; got != want {
		t.Errorf("Formatf() = %q, want %q", got, want)
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	if Report(&buf, nil) {
		t.Error("Report(nil) should report nothing")
	}
	if buf.Len() != 0 {
		t.Errorf("Report(nil) wrote %q", buf.String())
	}

	if !Report(&buf, errors.New("boom")) {
		t.Error("Report(err) should report")
	}
	if got := buf.String(); got != "Error: boom\n" {
		t.Errorf("Report() wrote %q", got)
	}
}

func TestFatal(t *testing.T) {
	var code int
	orig := exit
	t.Cleanup(func() { exit = orig })
	exit = func(c int) { code = c }

	Fatal(nil)
	if code != 0 {
		t.Errorf("Fatal(nil) exited with %d", code)
	}
	Fatal(errors.New("test error"))
	if code != 1 {
		t.Errorf("Fatal() exit code = %d, want 1", code)
	}
}
