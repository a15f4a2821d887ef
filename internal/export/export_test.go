package export

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/models"
	"github.com/julianstephens/habitus/internal/session"
	"github.com/julianstephens/habitus/internal/storage"
	"github.com/julianstephens/habitus/internal/storage/sqlite"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.Options{Path: filepath.Join(t.TempDir(), constants.DefaultDBName)})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"yaml": FormatYAML, "YML": FormatYAML, " json ": FormatJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("csv")
	assert.Error(t, err)
}

func TestCollectScopesToActingUser(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	uid, err := s.CreateUser(ctx, "a@a.com", "")
	require.NoError(t, err)
	asA := session.WithUser(ctx, uid)
	_, err = s.InsertHabit(asA, models.NewHabitFields().Title("Leer").Type(models.HabitRead).Points(15))
	require.NoError(t, err)
	_, err = s.AddScore(asA, "Leer", 15)
	require.NoError(t, err)
	_, err = s.InsertHabit(ctx, models.NewHabitFields().Title("Other").Type(models.HabitWalk))
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	doc, err := Collect(asA, s, now)
	require.NoError(t, err)

	assert.Equal(t, "a@a.com", doc.User.Email)
	assert.Equal(t, 5, doc.SchemaVersion)
	assert.Equal(t, 15, doc.TotalScore)
	require.Len(t, doc.Habits, 1)
	assert.Equal(t, "Leer", doc.Habits[0].Title)
	require.Len(t, doc.Scores, 1)
	assert.Equal(t, now, doc.ExportedAt)
}

func TestWriteFormats(t *testing.T) {
	s := openStore(t)
	doc, err := Collect(context.Background(), s, time.Now())
	require.NoError(t, err)
	assert.NotNil(t, doc.Habits)

	var js bytes.Buffer
	require.NoError(t, Write(&js, FormatJSON, doc))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, []any{}, decoded["habits"])
	assert.NotContains(t, js.String(), "password")

	var ym bytes.Buffer
	require.NoError(t, Write(&ym, FormatYAML, doc))
	var node map[string]any
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &node))
	assert.Contains(t, node, "user")
	assert.Contains(t, ym.String(), constants.DefaultUserEmail)

	assert.Error(t, Write(&js, Format("xml"), doc))
}
