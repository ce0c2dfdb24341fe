// Package memory keeps bounded, expiring conversation history per
// (session, dataset) pair.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// MaxHistory is the number of turns retained per (session, dataset) key.
	MaxHistory = 10
	// SessionTTL is how long a session survives without activity.
	SessionTTL = 24 * time.Hour
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExpired   = errors.New("session expired")
	ErrStoreUnavailable = errors.New("conversation store unavailable")
	ErrInvalidRole      = errors.New("invalid turn role")
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message in a conversation log.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session groups conversation logs for one caller.
type Session struct {
	ID         string    `json:"session_id"`
	ProfileTag string    `json:"profile_tag,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Store is the conversation memory contract shared by every backend.
//
// GetSession returns (nil, nil) for a missing or expired session. Backend
// failures wrap ErrStoreUnavailable and are never reported as empty history.
type Store interface {
	CreateSession(ctx context.Context, profileTag string) (string, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	AppendTurn(ctx context.Context, sessionID, datasetID string, role Role, content string) error
	History(ctx context.Context, sessionID, datasetID string) ([]Turn, error)
	TurnCount(ctx context.Context, sessionID, datasetID string) (int, error)
	Clear(ctx context.Context, sessionID, datasetID string) error
	ReapExpired(ctx context.Context) (int, error)
}

// Expired is the single expiry predicate used by lazy reads and the reaper.
func Expired(now, lastActive time.Time, ttl time.Duration) bool {
	return now.Sub(lastActive) > ttl
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
