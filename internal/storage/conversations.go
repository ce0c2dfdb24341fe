package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, profile_tag, created_at, last_active) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.ProfileTag, formatTime(sess.CreatedAt), formatTime(sess.LastActive),
	)
	if err != nil {
		return fmt.Errorf("creating session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession returns the session row for id or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var (
		sess                  Session
		createdAt, lastActive string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_tag, created_at, last_active FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.ProfileTag, &createdAt, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.LastActive, err = parseTime(lastActive); err != nil {
		return Session{}, fmt.Errorf("parsing last_active: %w", err)
	}
	return sess, nil
}

// AppendTurn inserts t, keeps only the newest keep turns for its
// (session, dataset) key and refreshes the session's last_active, all in one
// transaction. t.CreatedAt is stamped from now inside the transaction so seq
// order and timestamp order agree. A session idle for longer than ttl yields
// ErrExpired.
func (s *Store) AppendTurn(ctx context.Context, t Turn, keep int, ttl time.Duration, now func() time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var lastActive string
	err = tx.QueryRowContext(ctx, `SELECT last_active FROM sessions WHERE id = ?`, t.SessionID).Scan(&lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading session %s: %w", t.SessionID, err)
	}
	last, err := parseTime(lastActive)
	if err != nil {
		return fmt.Errorf("parsing last_active: %w", err)
	}
	t.CreatedAt = now()
	if t.CreatedAt.Sub(last) > ttl {
		return ErrExpired
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (session_id, dataset_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.SessionID, t.DatasetID, t.Role, t.Content, formatTime(t.CreatedAt),
	); err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM turns
		WHERE session_id = ? AND dataset_id = ? AND seq NOT IN (
			SELECT seq FROM turns WHERE session_id = ? AND dataset_id = ?
			ORDER BY seq DESC LIMIT ?
		)`,
		t.SessionID, t.DatasetID, t.SessionID, t.DatasetID, keep,
	); err != nil {
		return fmt.Errorf("trimming turns: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET last_active = ? WHERE id = ?`,
		formatTime(t.CreatedAt), t.SessionID,
	); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// Turns returns the turns for a (session, dataset) key oldest-first.
func (s *Store) Turns(ctx context.Context, sessionID, datasetID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, session_id, dataset_id, role, content, created_at
		FROM turns WHERE session_id = ? AND dataset_id = ? ORDER BY seq ASC`,
		sessionID, datasetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var createdAt string
		if err := rows.Scan(&t.Seq, &t.SessionID, &t.DatasetID, &t.Role, &t.Content, &createdAt); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountTurns returns how many turns are stored for a (session, dataset) key.
func (s *Store) CountTurns(ctx context.Context, sessionID, datasetID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM turns WHERE session_id = ? AND dataset_id = ?`,
		sessionID, datasetID,
	).Scan(&n)
	return n, err
}

// DeleteTurns removes every turn for a (session, dataset) key. The session row is kept.
func (s *Store) DeleteTurns(ctx context.Context, sessionID, datasetID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ? AND dataset_id = ?`, sessionID, datasetID)
	return err
}

// DeleteSessionsBefore removes sessions whose last_active is before cutoff,
// together with their turns, and reports how many sessions were removed.
func (s *Store) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning reap transaction: %w", err)
	}
	defer tx.Rollback()

	c := formatTime(cutoff)
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM turns WHERE session_id IN (SELECT id FROM sessions WHERE last_active < ?)`, c,
	); err != nil {
		return 0, fmt.Errorf("deleting expired turns: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE last_active < ?`, c)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing reap: %w", err)
	}
	return int(n), nil
}
