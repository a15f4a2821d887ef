// Package export writes the acting user's habits and scores as YAML or JSON.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/julianstephens/habitus/internal/models"
	"github.com/julianstephens/habitus/internal/storage"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat accepts yaml, yml or json in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported export format %q (use yaml or json)", s)
}

// Document is the exported snapshot.
type Document struct {
	ExportedAt    time.Time           `json:"exported_at" yaml:"exported_at"`
	SchemaVersion int                 `json:"schema_version" yaml:"schema_version"`
	User          models.User         `json:"user" yaml:"user"`
	TotalScore    int                 `json:"total_score" yaml:"total_score"`
	Habits        []models.Habit      `json:"habits" yaml:"habits"`
	Scores        []models.ScoreEntry `json:"scores" yaml:"scores"`
}

// Collect reads everything the acting user owns.
func Collect(ctx context.Context, s *storage.Store, now time.Time) (Document, error) {
	uid, err := s.ActingUser(ctx)
	if err != nil {
		return Document{}, err
	}
	u, found, err := s.GetUserByID(ctx, uid)
	if err != nil {
		return Document{}, err
	}
	if !found {
		return Document{}, fmt.Errorf("user %d: %w", uid, storage.ErrNotFound)
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return Document{}, err
	}
	habits, err := s.GetAllHabits(ctx)
	if err != nil {
		return Document{}, err
	}
	scores, err := s.GetAllScores(ctx)
	if err != nil {
		return Document{}, err
	}
	total, err := s.GetTotalScore(ctx)
	if err != nil {
		return Document{}, err
	}

	if habits == nil {
		habits = []models.Habit{}
	}
	if scores == nil {
		scores = []models.ScoreEntry{}
	}
	return Document{
		ExportedAt:    now.UTC(),
		SchemaVersion: version,
		User:          u,
		TotalScore:    total,
		Habits:        habits,
		Scores:        scores,
	}, nil
}

// Write encodes doc to w.
func Write(w io.Writer, f Format, doc Document) error {
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unsupported export format %q", f)
}
