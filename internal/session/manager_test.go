package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m := New(nil, cfg, zerolog.Nop())
	t.Cleanup(m.Close)
	return m
}

func TestManagerCreateAssignsIDAndToken(t *testing.T) {
	m := newTestManager(t, Config{})
	s, err := m.Create()
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, StatusCreated, s.Status)
}

func TestManagerCreateRejectsOverCapacity(t *testing.T) {
	m := newTestManager(t, Config{MaxSessions: 1})
	_, err := m.Create()
	require.NoError(t, err)

	_, err = m.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestManagerGetUnknownReturnsNotFound(t *testing.T) {
	m := newTestManager(t, Config{})
	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerEndOnNonActiveSessionIsSafe(t *testing.T) {
	m := newTestManager(t, Config{})
	s, err := m.Create()
	require.NoError(t, err)

	err = m.End(context.Background(), s.ID)
	require.NoError(t, err)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, got.Status)
}

func TestManagerEndIsIdempotent(t *testing.T) {
	m := newTestManager(t, Config{})
	s, err := m.Create()
	require.NoError(t, err)

	require.NoError(t, m.End(context.Background(), s.ID))
	require.NoError(t, m.End(context.Background(), s.ID))
}

func TestManagerEndUnknownSessionErrors(t *testing.T) {
	m := newTestManager(t, Config{})
	err := m.End(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerTouchUpdatesLastActivity(t *testing.T) {
	m := newTestManager(t, Config{})
	s, err := m.Create()
	require.NoError(t, err)

	before := s.LastActivityAt
	time.Sleep(5 * time.Millisecond)
	m.Touch(s.ID)

	got, _ := m.Get(s.ID)
	assert.True(t, got.LastActivityAt.After(before))
}

func TestManagerSweepIdleEndsStaleActiveSessions(t *testing.T) {
	m := newTestManager(t, Config{IdleTimeout: 10 * time.Millisecond})
	s, err := m.Create()
	require.NoError(t, err)

	m.mu.Lock()
	s.Status = StatusActive
	s.LastActivityAt = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	m.sweepIdle()

	got, _ := m.Get(s.ID)
	assert.Equal(t, StatusEnded, got.Status)
}

func TestManagerSweepIdleIgnoresRecentlyActiveSessions(t *testing.T) {
	m := newTestManager(t, Config{IdleTimeout: time.Hour})
	s, err := m.Create()
	require.NoError(t, err)

	m.mu.Lock()
	s.Status = StatusActive
	m.mu.Unlock()

	m.sweepIdle()

	got, _ := m.Get(s.ID)
	assert.Equal(t, StatusActive, got.Status)
}

func TestManagerMarkUnhealthyFiresCallbackOnce(t *testing.T) {
	m := newTestManager(t, Config{})
	s, err := m.Create()
	require.NoError(t, err)

	var calls int
	m.OnUnhealthy(func(sessionID string) { calls++ })

	m.markUnhealthy(s.ID)
	m.markUnhealthy(s.ID)

	assert.Equal(t, 1, calls)
}

func TestManagerStepLifecycleFiresEvents(t *testing.T) {
	m := newTestManager(t, Config{})
	s, err := m.Create()
	require.NoError(t, err)

	var events []string
	m.OnStepEvent(func(sessionID, kind string, step *Step) {
		events = append(events, kind)
	})

	step := s.Steps().Append(&Step{Action: ActionClick})
	if m.onStepEvent != nil {
		m.onStepEvent(s.ID, "step:new", step)
	}

	_, err = m.UpdateStepCaption(s.ID, step.ID, "caption")
	require.NoError(t, err)

	require.NoError(t, m.DeleteStep(s.ID, step.ID))

	assert.Equal(t, []string{"step:new", "step:updated", "step:deleted"}, events)
}
