package queue

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

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return &Queue{Store: st}
}

func mustWorkspace(t *testing.T, s string) ids.WorkspaceName {
	t.Helper()
	n, err := ids.ParseWorkspaceName(s)
	require.NoError(t, err)
	return n
}

func mustPriority(t *testing.T, p int) ids.Priority {
	t.Helper()
	pr, err := ids.ParsePriority(p)
	require.NoError(t, err)
	return pr
}

func mustQAgent(t *testing.T, s string) ids.AgentId {
	t.Helper()
	a, err := ids.ParseAgentId(s)
	require.NoError(t, err)
	return a
}

func mustLease(t *testing.T, seconds int) ids.LeaseSeconds {
	t.Helper()
	l, err := ids.ParseLeaseSeconds(seconds)
	require.NoError(t, err)
	return l
}

// S1: single-writer claim — lower priority value wins first.
func TestClaimNextOrdersByPriorityThenSubmission(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	_, err := q.Enqueue(ctx, EnqueueInput{Workspace: mustWorkspace(t, "a"), Priority: mustPriority(t, 5), DedupeKey: "a"}, now)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, EnqueueInput{Workspace: mustWorkspace(t, "b"), Priority: mustPriority(t, 3), DedupeKey: "b"}, now.Add(time.Second))
	require.NoError(t, err)

	first, err := q.ClaimNext(ctx, mustQAgent(t, "agent-1"), mustLease(t, 60), now.Add(2*time.Second))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "b", first.Workspace, "lower priority value claims first")

	second, err := q.ClaimNext(ctx, mustQAgent(t, "agent-2"), mustLease(t, 60), now.Add(2*time.Second))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "a", second.Workspace)

	third, err := q.ClaimNext(ctx, mustQAgent(t, "agent-3"), mustLease(t, 60), now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Nil(t, third)
}

// S2: lease expiry & self-heal.
func TestReclaimStaleReturnsExpiredClaimToPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	_, err := q.Enqueue(ctx, EnqueueInput{Workspace: mustWorkspace(t, "w"), Priority: mustPriority(t, 5), DedupeKey: "w"}, now)
	require.NoError(t, err)

	claimed, err := q.ClaimNext(ctx, mustQAgent(t, "X"), mustLease(t, 1), now)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	later := now.Add(1500 * time.Millisecond)
	n, err := q.ReclaimStale(ctx, 0, later)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// second sweep is a no-op (Property 6)
	n, err = q.ReclaimStale(ctx, 0, later)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	next, err := q.ClaimNext(ctx, mustQAgent(t, "Y"), mustLease(t, 60), later)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, claimed.ID, next.ID)
}

// S3: dedup on re-enqueue.
func TestEnqueueDedupReturnsExistingID(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	first, err := q.Enqueue(ctx, EnqueueInput{Workspace: mustWorkspace(t, "x"), Priority: mustPriority(t, 5), DedupeKey: "k"}, now)
	require.NoError(t, err)

	second, err := q.Enqueue(ctx, EnqueueInput{Workspace: mustWorkspace(t, "x"), Priority: mustPriority(t, 5), DedupeKey: "k"}, now)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	entries, err := q.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func mustID(t *testing.T, n int64) ids.QueueEntryId {
	t.Helper()
	id, err := ids.NewQueueEntryId(n)
	require.NoError(t, err)
	return id
}

func TestReleaseRejectsNonHolder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	rec, err := q.Enqueue(ctx, EnqueueInput{Workspace: mustWorkspace(t, "w"), Priority: mustPriority(t, 5), DedupeKey: "w"}, now)
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, mustQAgent(t, "holder"), mustLease(t, 60), now)
	require.NoError(t, err)

	err = q.Release(ctx, mustID(t, rec.ID), mustQAgent(t, "intruder"), now)
	assert.ErrorIs(t, err, zjjerr.ErrNotLockHolder)

	assert.NoError(t, q.Release(ctx, mustID(t, rec.ID), mustQAgent(t, "holder"), now))
}
