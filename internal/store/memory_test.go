package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubh-37/postpilot/internal/models"
)

func TestMemoryStore_SessionRoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	s := models.NewSession("a post about code review")
	require.NoError(t, m.CreateSession(ctx, s))
	assert.Equal(t, int64(1), s.Version)

	loaded, err := m.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, "a post about code review", loaded.InitialIdea)
	assert.Equal(t, int64(1), loaded.Version)
}

func TestMemoryStore_CreateSessionRejectsDuplicate(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	s := models.NewSession("idea")
	require.NoError(t, m.CreateSession(ctx, s))
	assert.ErrorIs(t, m.CreateSession(ctx, s), ErrExists)
}

func TestMemoryStore_LoadSessionNotFound(t *testing.T) {
	m := NewMemoryStore()

	_, err := m.LoadSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SaveSessionBumpsVersion(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	s := models.NewSession("idea")
	require.NoError(t, m.CreateSession(ctx, s))

	s.State = models.SessionQuestioning
	require.NoError(t, m.SaveSession(ctx, s))
	assert.Equal(t, int64(2), s.Version)

	loaded, err := m.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionQuestioning, loaded.State)
	assert.Equal(t, int64(2), loaded.Version)
}

func TestMemoryStore_SaveSessionDetectsConflict(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	s := models.NewSession("idea")
	require.NoError(t, m.CreateSession(ctx, s))

	first, err := m.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	second, err := m.LoadSession(ctx, s.ID)
	require.NoError(t, err)

	first.State = models.SessionQuestioning
	require.NoError(t, m.SaveSession(ctx, first))

	second.State = models.SessionCancelled
	assert.ErrorIs(t, m.SaveSession(ctx, second), ErrConflict)

	// The stale writer's change never landed.
	loaded, err := m.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionQuestioning, loaded.State)
}

func TestMemoryStore_SaveSessionNotFound(t *testing.T) {
	m := NewMemoryStore()

	s := models.NewSession("idea")
	assert.ErrorIs(t, m.SaveSession(context.Background(), s), ErrNotFound)
}

func TestMemoryStore_LoadedSessionIsIsolated(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	s := models.NewSession("idea")
	require.NoError(t, m.CreateSession(ctx, s))

	loaded, err := m.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	loaded.CoveredFocusAreas[models.FocusHookPreference] = true
	loaded.Turns = append(loaded.Turns, models.Turn{Speaker: models.SpeakerUser, Text: "x"})

	fresh, err := m.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, fresh.Turns)
	assert.Empty(t, fresh.CoveredFocusAreas)
}

func TestMemoryStore_RunRoundTripAndConflict(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	b := models.NewContextBundle("topic", nil)
	r := models.NewPipelineRun(b, "sess-1")
	require.NoError(t, m.CreateRun(ctx, r))

	first, err := m.LoadRun(ctx, r.ID)
	require.NoError(t, err)
	second, err := m.LoadRun(ctx, r.ID)
	require.NoError(t, err)

	first.State = models.RunAwaitingUserApproval
	require.NoError(t, m.SaveRun(ctx, first))

	second.State = models.RunAborted
	assert.ErrorIs(t, m.SaveRun(ctx, second), ErrConflict)

	loaded, err := m.LoadRun(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunAwaitingUserApproval, loaded.State)
	assert.Equal(t, "sess-1", loaded.SessionID)
	require.NotNil(t, loaded.Bundle)
	assert.Equal(t, b.ID, loaded.Bundle.ID)
}
