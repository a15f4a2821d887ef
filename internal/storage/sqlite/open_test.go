package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/habitus/internal/backup"
	"github.com/julianstephens/habitus/internal/changes"
	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/dialect"
	"github.com/julianstephens/habitus/internal/lockfile"
	"github.com/julianstephens/habitus/internal/migration"
	"github.com/julianstephens/habitus/internal/models"
	"github.com/julianstephens/habitus/internal/schema"
	"github.com/julianstephens/habitus/internal/storage"
)

func TestOpenFreshStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", constants.DefaultDBName)

	var messages []string
	s, err := Open(ctx, Options{Path: path, Progress: func(m string) { messages = append(messages, m) }})
	require.NoError(t, err)
	defer s.Close()

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.Default().Latest(), v)
	assert.NotEmpty(t, messages)

	u, found, err := s.GetUserByEmail(ctx, constants.DefaultUserEmail)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, u.Active)

	var fk int
	require.NoError(t, s.DB().GetContext(ctx, &fk, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, fk)

	var mode string
	require.NoError(t, s.DB().GetContext(ctx, &mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)

	backups, err := backup.NewManager(path).List()
	require.NoError(t, err)
	assert.Empty(t, backups, "fresh store should not be backed up")
}

func TestConcurrentUse(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), constants.DefaultDBName)
	f := Factory(Options{Path: path})

	titles := []string{"Leer", "Correr"}
	errs := make(chan error, len(titles))
	started := make(chan struct{})
	var wg sync.WaitGroup
	for _, title := range titles {
		wg.Add(1)
		go func(title string) {
			defer wg.Done()
			<-started
			errs <- f.Use(ctx, func(s *storage.Store) error {
				_, err := s.InsertHabit(ctx, models.NewHabitFields().Title(title).Type(models.HabitExercise))
				return err
			})
		}(title)
	}

	// a handle held open does not block the others
	held, release, err := f.Acquire(ctx)
	require.NoError(t, err)
	close(started)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	habits, err := held.GetAllHabits(ctx)
	require.NoError(t, err)
	assert.Len(t, habits, 2)
	require.NoError(t, release())
	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), constants.LockfileName))
}

func TestOpenRespectsForeignLock(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, constants.DefaultDBName)
	lockPath := filepath.Join(dir, constants.LockfileName)

	// a live holder, as another habitus process would leave it
	require.NoError(t, os.WriteFile(lockPath, []byte(fmt.Sprintf("%d|habitus", os.Getpid())), 0600))
	_, err := Open(ctx, Options{Path: path})
	assert.True(t, errors.Is(err, lockfile.ErrLocked), "got %v", err)

	require.NoError(t, os.Remove(lockPath))
	s, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpenBacksUpBeforeMigrating(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), constants.DefaultDBName)

	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	require.NoError(t, migration.NewEngine(db, dialect.SQLite{}).Bootstrap(ctx, 1))
	_, err = db.ExecContext(ctx, `INSERT INTO habits (title, type, points) VALUES ('Leer', 'READ', 15)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	defer s.Close()

	backups, err := backup.NewManager(path).List()
	require.NoError(t, err)
	require.Len(t, backups, 1)

	info, err := backup.NewManager(path).Inspect(ctx, backups[0].Path)
	require.NoError(t, err)
	assert.Equal(t, 1, info.SchemaVersion)

	habits, err := s.GetAllHabits(ctx)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	assert.Equal(t, "Leer", habits[0].Title)
	assert.Equal(t, 15, habits[0].PointsPerCompletion)
}

func TestFactoryPublishesToSink(t *testing.T) {
	ctx := context.Background()
	rec := &changes.Recorder{}
	f := Factory(Options{Path: filepath.Join(t.TempDir(), constants.DefaultDBName), Sink: rec})

	err := f.Use(ctx, func(s *storage.Store) error {
		_, err := s.InsertHabit(ctx, models.NewHabitFields().Title("Correr").Type(models.HabitExercise))
		return err
	})
	require.NoError(t, err)
	require.Len(t, rec.Changes(), 1)
	assert.Equal(t, changes.EntityHabit, rec.Changes()[0].Entity)

	// the handle was released, so the lock is free again
	require.NoError(t, f.Use(ctx, func(*storage.Store) error { return nil }))
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), constants.DefaultDBName)

	st, err := Status(ctx, path)
	require.NoError(t, err)
	assert.True(t, st.Bootstrap)
	assert.NoFileExists(t, path, "status must not create the database")

	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	require.NoError(t, migration.NewEngine(db, dialect.SQLite{}).Bootstrap(ctx, 3))
	require.NoError(t, db.Close())

	st, err = Status(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Current)
	assert.False(t, st.Bootstrap)
	require.NotEmpty(t, st.Steps)
	assert.Equal(t, 4, st.Steps[0].Version)

	s, err := Open(ctx, Options{Path: path, SkipBackup: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	st, err = Status(ctx, path)
	require.NoError(t, err)
	assert.True(t, st.UpToDate())
}
