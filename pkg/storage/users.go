package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// IsApproved reports whether uid has an approved user record. A missing
// record is simply not approved; it is not an error.
func (s *Store) IsApproved(ctx context.Context, uid string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrStoreClosed
	}

	var approved bool
	err := s.db.QueryRowContext(ctx,
		`SELECT approved FROM users WHERE uid = ?`, uid,
	).Scan(&approved)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query user approval: %w", err)
	}
	return approved, nil
}

// UserExists reports whether a user record exists for uid.
func (s *Store) UserExists(ctx context.Context, uid string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrStoreClosed
	}

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE uid = ?`, uid,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query user: %w", err)
	}
	return true, nil
}

// SetApproved creates or updates the user record's approval flag.
func (s *Store) SetApproved(ctx context.Context, uid string, approved bool) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uid, approved)
		VALUES (?, ?)
		ON CONFLICT(uid) DO UPDATE SET approved = excluded.approved
	`, uid, approved)
	if err != nil {
		return fmt.Errorf("set user approval: %w", err)
	}
	return nil
}
