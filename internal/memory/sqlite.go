package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sigamony/DataViz/internal/storage"
)

// TurnStore is the subset of storage.Store the durable backend needs.
type TurnStore interface {
	CreateSession(ctx context.Context, sess storage.Session) error
	GetSession(ctx context.Context, id string) (storage.Session, error)
	AppendTurn(ctx context.Context, t storage.Turn, keep int, ttl time.Duration, now func() time.Time) error
	Turns(ctx context.Context, sessionID, datasetID string) ([]storage.Turn, error)
	CountTurns(ctx context.Context, sessionID, datasetID string) (int, error)
	DeleteTurns(ctx context.Context, sessionID, datasetID string) error
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SQLite persists sessions and turns through storage.Store. Append, trim and
// session touch happen in one transaction.
type SQLite struct {
	store TurnStore
	clock Clock
	ttl   time.Duration
	keep  int
}

// NewSQLite creates a durable store with MaxHistory and SessionTTL.
func NewSQLite(store TurnStore) *SQLite {
	return &SQLite{store: store, clock: realClock{}, ttl: SessionTTL, keep: MaxHistory}
}

func (s *SQLite) CreateSession(ctx context.Context, profileTag string) (string, error) {
	now := s.clock.Now()
	id := uuid.NewString()
	err := s.store.CreateSession(ctx, storage.Session{ID: id, ProfileTag: profileTag, CreatedAt: now, LastActive: now})
	if err != nil {
		return "", unavailable("creating session", err)
	}
	return id, nil
}

func (s *SQLite) GetSession(ctx context.Context, id string) (*Session, error) {
	rec, err := s.store.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("reading session", err)
	}
	if Expired(s.clock.Now(), rec.LastActive, s.ttl) {
		return nil, nil
	}
	return &Session{ID: rec.ID, ProfileTag: rec.ProfileTag, CreatedAt: rec.CreatedAt, LastActive: rec.LastActive}, nil
}

func (s *SQLite) AppendTurn(ctx context.Context, sessionID, datasetID string, role Role, content string) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	err := s.store.AppendTurn(ctx, storage.Turn{
		SessionID: sessionID,
		DatasetID: datasetID,
		Role:      string(role),
		Content:   content,
	}, s.keep, s.ttl, s.clock.Now)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, storage.ErrExpired):
		return ErrSessionExpired
	default:
		return unavailable("appending turn", err)
	}
}

func (s *SQLite) History(ctx context.Context, sessionID, datasetID string) ([]Turn, error) {
	if err := s.check(ctx, sessionID); err != nil {
		return nil, err
	}
	recs, err := s.store.Turns(ctx, sessionID, datasetID)
	if err != nil {
		return nil, unavailable("reading history", err)
	}
	turns := make([]Turn, len(recs))
	for i, r := range recs {
		turns[i] = Turn{Role: Role(r.Role), Content: r.Content, CreatedAt: r.CreatedAt}
	}
	return turns, nil
}

func (s *SQLite) TurnCount(ctx context.Context, sessionID, datasetID string) (int, error) {
	if err := s.check(ctx, sessionID); err != nil {
		return 0, err
	}
	n, err := s.store.CountTurns(ctx, sessionID, datasetID)
	if err != nil {
		return 0, unavailable("counting turns", err)
	}
	return n, nil
}

func (s *SQLite) Clear(ctx context.Context, sessionID, datasetID string) error {
	if err := s.check(ctx, sessionID); err != nil {
		return err
	}
	if err := s.store.DeleteTurns(ctx, sessionID, datasetID); err != nil {
		return unavailable("clearing history", err)
	}
	return nil
}

func (s *SQLite) ReapExpired(ctx context.Context) (int, error) {
	// DeleteSessionsBefore removes last_active < cutoff, matching Expired.
	n, err := s.store.DeleteSessionsBefore(ctx, s.clock.Now().Add(-s.ttl))
	if err != nil {
		return 0, unavailable("reaping sessions", err)
	}
	return n, nil
}

// check distinguishes missing from expired sessions.
func (s *SQLite) check(ctx context.Context, id string) error {
	rec, err := s.store.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return unavailable("reading session", err)
	}
	if Expired(s.clock.Now(), rec.LastActive, s.ttl) {
		return ErrSessionExpired
	}
	return nil
}
