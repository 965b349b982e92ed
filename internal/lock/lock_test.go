package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjj-vcs/zjj/internal/ids"
	"github.com/zjj-vcs/zjj/internal/store"
	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return &Manager{Store: st}
}

func agent(t *testing.T, s string) ids.AgentId {
	t.Helper()
	a, err := ids.ParseAgentId(s)
	require.NoError(t, err)
	return a
}

func lease(t *testing.T, s int) ids.LeaseSeconds {
	t.Helper()
	l, err := ids.ParseLeaseSeconds(s)
	require.NoError(t, err)
	return l
}

// Property 7: acquire returns success at most once per lease window.
func TestAcquireIsExclusiveWithinLeaseWindow(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	_, err := m.Acquire(ctx, agent(t, "a"), lease(t, 60), now)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, agent(t, "b"), lease(t, 60), now.Add(time.Second))
	assert.ErrorIs(t, err, zjjerr.ErrNotLockHolder)
}

func TestAcquireSucceedsAfterExpiry(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	_, err := m.Acquire(ctx, agent(t, "a"), lease(t, 1), now)
	require.NoError(t, err)

	later := now.Add(2 * time.Second)
	_, err = m.Acquire(ctx, agent(t, "b"), lease(t, 60), later)
	require.NoError(t, err)

	cur, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", cur.AgentID)
}

func TestReleaseRequiresHolder(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	_, err := m.Acquire(ctx, agent(t, "a"), lease(t, 60), now)
	require.NoError(t, err)

	err = m.Release(ctx, agent(t, "intruder"))
	assert.Error(t, err)

	err = m.Release(ctx, agent(t, "a"))
	assert.NoError(t, err)

	cur, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestExtendRequiresHolder(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	_, err := m.Acquire(ctx, agent(t, "a"), lease(t, 60), now)
	require.NoError(t, err)

	err = m.Extend(ctx, agent(t, "a"), lease(t, 120), now.Add(time.Second))
	assert.NoError(t, err)

	stale, err := m.IsStale(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, stale)
}
