package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Extraction is one persisted number discovery.
type Extraction struct {
	ID        int64     `json:"id"`
	UID       string    `json:"uid"`
	Number    string    `json:"number"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionMeta is the durable summary of a user's most recent scraping session.
type SessionMeta struct {
	UID         string    `json:"uid"`
	LiveURL     string    `json:"liveUrl"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// AppendNumber records a discovered number for uid.
func (s *Store) AppendNumber(ctx context.Context, uid, number, message string, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if at.IsZero() {
		at = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extractions (uid, number, message, created_at)
		VALUES (?, ?, ?, ?)
	`, uid, number, message, at)
	if err != nil {
		return fmt.Errorf("append extraction: %w", err)
	}
	return nil
}

// UpsertSessionMeta stores the live URL and freshness marker for uid's session.
func (s *Store) UpsertSessionMeta(ctx context.Context, uid, liveURL string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_sessions (uid, live_url, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			live_url = excluded.live_url,
			last_updated = excluded.last_updated
	`, uid, liveURL, time.Now())
	if err != nil {
		return fmt.Errorf("upsert session meta: %w", err)
	}
	return nil
}

// NumbersForUser returns uid's persisted extractions in discovery order,
// capped at limit (0 means no cap).
func (s *Store) NumbersForUser(ctx context.Context, uid string, limit int) ([]Extraction, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	query := `
		SELECT id, uid, number, message, created_at
		FROM extractions
		WHERE uid = ?
		ORDER BY id ASC
	`
	args := []any{uid}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query extractions: %w", err)
	}
	defer rows.Close()

	var out []Extraction
	for rows.Next() {
		var e Extraction
		if err := rows.Scan(&e.ID, &e.UID, &e.Number, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extractions: %w", err)
	}
	return out, nil
}

// GetSessionMeta returns the stored session meta for uid, or nil when absent.
func (s *Store) GetSessionMeta(ctx context.Context, uid string) (*SessionMeta, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	var meta SessionMeta
	err := s.db.QueryRowContext(ctx, `
		SELECT uid, live_url, last_updated
		FROM extraction_sessions
		WHERE uid = ?
	`, uid).Scan(&meta.UID, &meta.LiveURL, &meta.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session meta: %w", err)
	}
	return &meta, nil
}
