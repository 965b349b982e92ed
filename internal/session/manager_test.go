package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjj-vcs/zjj/internal/events"
	"github.com/zjj-vcs/zjj/internal/ids"
	"github.com/zjj-vcs/zjj/internal/store"
	"github.com/zjj-vcs/zjj/internal/workspace"
	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

func newTestManager(t *testing.T) (*Manager, *workspace.Fake) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fake := workspace.NewFake()
	return &Manager{
		Store:      st,
		Driver:     fake,
		Bus:        events.New(),
		LocksDir:   filepath.Join(dir, "locks"),
		Workspaces: filepath.Join(dir, "workspaces"),
	}, fake
}

func mustName(t *testing.T, s string) ids.SessionName {
	t.Helper()
	n, err := ids.ParseSessionName(s)
	require.NoError(t, err)
	return n
}

func mustAgent(t *testing.T) ids.AgentId {
	t.Helper()
	a, err := ids.ParseAgentId("agent-1")
	require.NoError(t, err)
	return a
}

func TestManagerCreateSuccess(t *testing.T) {
	mgr, fake := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	rec, err := mgr.Create(ctx, CreateInput{Name: mustName(t, "alpha"), AgentID: mustAgent(t)}, now)
	require.NoError(t, err)
	assert.Equal(t, Ready, rec.Status)
	assert.Contains(t, fake.Calls, "create:alpha")
}

func TestManagerCreateRollsBackOnDriverFailure(t *testing.T) {
	mgr, fake := newTestManager(t)
	ctx := context.Background()
	fake.FailCreate = map[string]error{"beta": errors.New("disk full")}

	_, err := mgr.Create(ctx, CreateInput{Name: mustName(t, "beta"), AgentID: mustAgent(t)}, time.Now())
	require.ErrorIs(t, err, zjjerr.ErrWorkspaceCreateFailed)

	_, getErr := mgr.Get(ctx, mustName(t, "beta"))
	assert.ErrorIs(t, getErr, zjjerr.ErrNotFound)
}

func TestManagerRemoveBlockedByNonTerminalChildren(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	parent := mustName(t, "parent")
	_, err := mgr.Create(ctx, CreateInput{Name: parent, AgentID: mustAgent(t)}, now)
	require.NoError(t, err)

	childParent := parent
	_, err = mgr.Create(ctx, CreateInput{Name: mustName(t, "child"), Parent: &childParent, AgentID: mustAgent(t)}, now)
	require.NoError(t, err)

	err = mgr.Remove(ctx, parent, false, now)
	assert.ErrorIs(t, err, zjjerr.ErrHasChildren)

	err = mgr.Remove(ctx, parent, true, now)
	assert.NoError(t, err)
}

func TestManagerRemoveIsIdempotentOnNotFound(t *testing.T) {
	mgr, fake := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	name := mustName(t, "gamma")
	_, err := mgr.Create(ctx, CreateInput{Name: name, AgentID: mustAgent(t)}, now)
	require.NoError(t, err)

	require.NoError(t, mgr.Remove(ctx, name, false, now))
	assert.True(t, fake.IsForgotten("gamma"))

	_, err = mgr.Get(ctx, name)
	assert.ErrorIs(t, err, zjjerr.ErrNotFound)

	err = mgr.Remove(ctx, name, false, now)
	assert.ErrorIs(t, err, zjjerr.ErrNotFound)
}
