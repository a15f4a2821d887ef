package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/habitus/internal/changes"
	"github.com/julianstephens/habitus/internal/models"
)

// CreateUser registers a user. A duplicate email is a ConstraintError.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (int64, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, &ConstraintError{Table: "users", Column: "email", Reason: "is required"}
	}

	var hash any
	if passwordHash != "" {
		hash = passwordHash
	}

	var id int64
	err := s.db.GetContext(ctx, &id, s.rebind(
		`INSERT INTO users (email, password_hash, created_at, is_active) VALUES (?, ?, ?, 1) RETURNING user_id`),
		email, hash, s.nowMillis())
	if err != nil {
		return 0, s.classify("users", "email", fmt.Errorf("failed to create user %s: %w", email, err))
	}

	if u, found, err := s.GetUserByID(ctx, id); err == nil && found {
		s.publish(ctx, changes.New(changes.EntityUser, changes.OpCreate, id, id, u))
	}
	return id, nil
}

// GetUserByEmail returns the user with email, if any.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, bool, error) {
	return s.getUser(ctx, `email = ?`, email)
}

// GetUserByID returns the user with id, if any.
func (s *Store) GetUserByID(ctx context.Context, id int64) (models.User, bool, error) {
	return s.getUser(ctx, `user_id = ?`, id)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (models.User, bool, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.rebind(
		`SELECT `+userColumns+` FROM users WHERE `+where+` ORDER BY user_id LIMIT 1`), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("failed to get user: %w", err)
	}
	return row.model(), true, nil
}

// ListUsers returns every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]models.User, len(rows))
	for i, r := range rows {
		users[i] = r.model()
	}
	return users, nil
}

// SetUserActive soft-disables or re-enables a user. It reports whether the
// user exists.
func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) (bool, error) {
	res, err := s.exec(ctx, s.db, `UPDATE users SET is_active = ? WHERE user_id = ?`, columnValue(active), id)
	if err != nil {
		return false, fmt.Errorf("failed to update user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if u, found, err := s.GetUserByID(ctx, id); err == nil && found {
		c := changes.New(changes.EntityUser, changes.OpUpdate, id, id, u)
		c.Fields = []string{"is_active"}
		s.publish(ctx, c)
	}
	return true, nil
}
