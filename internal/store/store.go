// Package store persists sessions and pipeline runs as single versioned
// records keyed by id. Saves use optimistic concurrency: a save fails with
// ErrConflict when the stored version advanced since the load, forcing the
// caller to retry against fresh state.
package store

import (
	"context"
	"errors"

	"github.com/shubh-37/postpilot/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("version conflict")
	ErrExists   = errors.New("already exists")
)

// SessionStore persists brainstorming sessions.
type SessionStore interface {
	// CreateSession stores a new session with Version set to 1.
	CreateSession(ctx context.Context, s *models.Session) error

	// LoadSession retrieves a session by id, or ErrNotFound.
	LoadSession(ctx context.Context, id string) (*models.Session, error)

	// SaveSession persists a modified session. The session's Version must
	// match the stored version; on success the version is incremented on
	// both the record and the passed session.
	SaveSession(ctx context.Context, s *models.Session) error
}

// RunStore persists pipeline runs.
type RunStore interface {
	CreateRun(ctx context.Context, r *models.PipelineRun) error
	LoadRun(ctx context.Context, id string) (*models.PipelineRun, error)
	SaveRun(ctx context.Context, r *models.PipelineRun) error
}

// Store is the combined persistence surface the service works against.
type Store interface {
	SessionStore
	RunStore
	Close() error
}
