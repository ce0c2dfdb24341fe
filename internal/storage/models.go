package storage

import (
	"errors"
	"time"

	"github.com/sigamony/DataViz/internal/profile"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExpired is returned when a session exists but is past its cutoff.
	ErrExpired = errors.New("expired")
)

// Dataset is the metadata kept for an uploaded file.
type Dataset struct {
	ID        string
	Filename  string
	Path      string
	SizeBytes int64
	Profile   profile.DatasetProfile
	CreatedAt time.Time
}

type Session struct {
	ID         string
	ProfileTag string
	CreatedAt  time.Time
	LastActive time.Time
}

type Turn struct {
	Seq       int64
	SessionID string
	DatasetID string
	Role      string
	Content   string
	CreatedAt time.Time
}
