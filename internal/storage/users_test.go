package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/models"
	"github.com/julianstephens/habitus/internal/session"
)

func TestCreateUser(t *testing.T) {
	s := newTestStore(t, WithClock(fixedClock()))
	ctx := context.Background()

	id, err := s.CreateUser(ctx, " a@a.com ", "hash")
	require.NoError(t, err)

	u, found, err := s.GetUserByEmail(ctx, "a@a.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "hash", u.PasswordHash)
	assert.True(t, u.Active)
	assert.Equal(t, 2026, u.CreatedAt.Year())

	_, err = s.CreateUser(ctx, "a@a.com", "")
	var ce *ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "email", ce.Column)

	_, err = s.CreateUser(ctx, "", "")
	assert.ErrorIs(t, err, ErrConstraintViolation)

	_, found, err = s.GetUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListUsersAndSetActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateUser(ctx, "a@a.com", "")
	require.NoError(t, err)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, constants.DefaultUserEmail, users[0].Email)
	assert.Equal(t, "a@a.com", users[1].Email)

	ok, err := s.SetUserActive(ctx, id, false)
	require.NoError(t, err)
	assert.True(t, ok)
	u, _, err := s.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, u.Active)

	ok, err = s.SetUserActive(ctx, 404, false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func seedUser(t *testing.T, s *Store, email string) (context.Context, int64) {
	t.Helper()
	ctx, uid := asUser(t, s, email)
	_, err := s.InsertHabit(ctx, habit("Leer", models.HabitRead).Points(15))
	require.NoError(t, err)
	_, err = s.InsertHabit(ctx, habit("Correr", models.HabitExercise))
	require.NoError(t, err)
	_, err = s.AddScore(ctx, "Leer", 15)
	require.NoError(t, err)
	return ctx, uid
}

func countRows(t *testing.T, s *Store, table string, uid int64) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().Get(&n, `SELECT count(*) FROM `+table+` WHERE user_id = ?`, uid))
	return n
}

func TestDeleteUserCascade(t *testing.T) {
	s := newTestStore(t)
	_, uidA := seedUser(t, s, "a@a.com")
	ctxB, uidB := seedUser(t, s, "b@b.com")

	ok, err := s.DeleteUserCascade(context.Background(), uidA)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, table := range []string{"users", "habits", "scores"} {
		assert.Zero(t, countRows(t, s, table, uidA), table)
		assert.NotZero(t, countRows(t, s, table, uidB), table)
	}

	habits, err := s.GetAllHabits(ctxB)
	require.NoError(t, err)
	assert.Len(t, habits, 2)
}

func TestDeleteUserCascadeUnknownUser(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.DeleteUserCascade(context.Background(), 404)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteUserCascadeIsAtomic(t *testing.T) {
	tests := []struct {
		name   string
		failOn string
	}{
		{"user delete fails", "DELETE FROM users"},
		{"habit delete fails", "DELETE FROM habits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			_, uid := seedUser(t, s, "a@a.com")

			s.hooks.exec = func(ctx context.Context, e sqlx.ExecerContext, query string, args ...any) (sql.Result, error) {
				if strings.HasPrefix(query, tt.failOn) {
					return nil, errors.New("simulated failure")
				}
				return e.ExecContext(ctx, query, args...)
			}

			ok, err := s.DeleteUserCascade(context.Background(), uid)
			assert.False(t, ok)
			require.ErrorIs(t, err, ErrTransactionFailure)

			s.hooks.exec = nil
			assert.Equal(t, 1, countRows(t, s, "users", uid))
			assert.Equal(t, 2, countRows(t, s, "habits", uid))
			assert.Equal(t, 1, countRows(t, s, "scores", uid))
		})
	}
}

func TestScenarioLeer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u1, err := s.CreateUser(ctx, "a@a.com", "")
	require.NoError(t, err)
	asU1 := session.WithUser(ctx, u1)

	_, err = s.InsertHabit(asU1, habit("Leer", models.HabitRead).Points(15))
	require.NoError(t, err)
	_, err = s.AddScore(asU1, "Leer", 15)
	require.NoError(t, err)

	total, err := s.GetTotalScore(asU1)
	require.NoError(t, err)
	assert.Equal(t, 15, total)

	scores, err := s.GetAllScores(asU1)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 15, scores[0].Points)

	ok, err := s.DeleteUserCascade(ctx, u1)
	require.NoError(t, err)
	require.True(t, ok)

	habits, err := s.GetAllHabits(asU1)
	require.NoError(t, err)
	assert.Empty(t, habits)
	scores, err = s.GetAllScores(asU1)
	require.NoError(t, err)
	assert.Empty(t, scores)
	_, found, err := s.GetUserByEmail(ctx, "a@a.com")
	require.NoError(t, err)
	assert.False(t, found)
}
