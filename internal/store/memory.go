package store

import (
	"context"
	"sync"
	"time"

	"github.com/shubh-37/postpilot/internal/models"
)

// MemoryStore implements Store with in-process maps and optimistic locking.
// Used for tests and single-node development runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	runs     map[string]*models.PipelineRun
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		runs:     make(map[string]*models.PipelineRun),
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return ErrExists
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.Version = 1
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) LoadSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.sessions[s.ID]
	if !exists {
		return ErrNotFound
	}
	if stored.Version != s.Version {
		return ErrConflict
	}

	s.Version++
	s.UpdatedAt = time.Now()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) CreateRun(ctx context.Context, r *models.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[r.ID]; exists {
		return ErrExists
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	m.runs[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) LoadRun(ctx context.Context, id string) (*models.PipelineRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, exists := m.runs[id]
	if !exists {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) SaveRun(ctx context.Context, r *models.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.runs[r.ID]
	if !exists {
		return ErrNotFound
	}
	if stored.Version != r.Version {
		return ErrConflict
	}

	r.Version++
	r.UpdatedAt = time.Now()
	m.runs[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = nil
	m.runs = nil
	return nil
}
