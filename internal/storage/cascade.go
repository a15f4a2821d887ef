package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/habitus/internal/changes"
	"github.com/julianstephens/habitus/internal/logger"
)

// DeleteUserCascade removes a user together with every score and habit they
// own, atomically. It returns true only when the user row itself was deleted;
// an unknown id is (false, nil). Any failure rolls everything back and is
// reported as ErrTransactionFailure.
func (s *Store) DeleteUserCascade(ctx context.Context, userID int64) (bool, error) {
	var (
		deleted        bool
		scores, habits int64
	)

	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if scores, err = s.deleteOwned(ctx, tx, `DELETE FROM scores WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete scores: %w", err)
		}
		if habits, err = s.deleteOwned(ctx, tx, `DELETE FROM habits WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete habits: %w", err)
		}
		n, err := s.deleteOwned(ctx, tx, `DELETE FROM users WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		logger.Error("Cascade delete rolled back", "user_id", userID, "error", err)
		return false, txFailure(fmt.Sprintf("delete user %d", userID), err)
	}

	if deleted {
		logger.Info("User deleted", "user_id", userID, "habits", habits, "scores", scores)
		s.publish(ctx, changes.New(changes.EntityUser, changes.OpDelete, userID, userID, nil))
	}
	return deleted, nil
}

func (s *Store) deleteOwned(ctx context.Context, tx *sqlx.Tx, query string, userID int64) (int64, error) {
	res, err := s.exec(ctx, tx, query, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
