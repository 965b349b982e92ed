package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(context.Background(), filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestClaimNextQueueEntrySetsHolderAndExpiry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := st.EnqueueQueueEntry(ctx, EnqueueInput{Workspace: "w", Priority: 5, DedupeKey: "w"}, now)
	require.NoError(t, err)

	claimed, err := st.ClaimNextQueueEntry(ctx, "agent-1", time.Minute, now)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, QueueClaimed, claimed.Status)
	assert.Equal(t, ClaimHeld, claimed.ClaimState)
	assert.Equal(t, "agent-1", claimed.ClaimAgent)
	require.NotNil(t, claimed.ExpiresAt)
	assert.WithinDuration(t, now.Add(time.Minute), *claimed.ExpiresAt, time.Second)

	again, err := st.ClaimNextQueueEntry(ctx, "agent-2", time.Minute, now)
	require.NoError(t, err)
	assert.Nil(t, again, "already-claimed entry is not claimable again")
}

func TestClaimSpecificQueueEntryRejectsAlreadyClaimedRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rec, err := st.EnqueueQueueEntry(ctx, EnqueueInput{Workspace: "w", Priority: 5, DedupeKey: "w"}, now)
	require.NoError(t, err)

	_, err = st.ClaimSpecificQueueEntry(ctx, rec.ID, "agent-1", time.Minute, now)
	require.NoError(t, err)

	_, err = st.ClaimSpecificQueueEntry(ctx, rec.ID, "agent-2", time.Minute, now)
	assert.ErrorIs(t, err, zjjerr.ErrNotFound, "a row that is no longer pending/unclaimed cannot be claimed again")
}

func TestReleaseQueueEntryReturnsToPendingAndClearsClaim(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rec, err := st.EnqueueQueueEntry(ctx, EnqueueInput{Workspace: "w", Priority: 5, DedupeKey: "w"}, now)
	require.NoError(t, err)
	_, err = st.ClaimNextQueueEntry(ctx, "agent-1", time.Minute, now)
	require.NoError(t, err)

	require.NoError(t, st.ReleaseQueueEntry(ctx, rec.ID, now))

	got, err := st.GetQueueEntry(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, QueuePending, got.Status)
	assert.Equal(t, ClaimUnclaimed, got.ClaimState)
	assert.Equal(t, "agent-1", got.PrevAgent)
	assert.Equal(t, "", got.ClaimAgent)
	assert.Nil(t, got.ExpiresAt)
}

// ExtendQueueEntryLease must fail for a non-holder, matching
// ExtendProcessingLock's equivalent check on the processing lock.
func TestExtendQueueEntryLeaseRejectsNonHolder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rec, err := st.EnqueueQueueEntry(ctx, EnqueueInput{Workspace: "w", Priority: 5, DedupeKey: "w"}, now)
	require.NoError(t, err)
	_, err = st.ClaimNextQueueEntry(ctx, "holder", time.Minute, now)
	require.NoError(t, err)

	err = st.ExtendQueueEntryLease(ctx, rec.ID, "intruder", time.Minute, now)
	assert.ErrorIs(t, err, zjjerr.ErrNotLockHolder)
}

func TestExtendQueueEntryLeaseRejectsAlreadyExpiredLease(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rec, err := st.EnqueueQueueEntry(ctx, EnqueueInput{Workspace: "w", Priority: 5, DedupeKey: "w"}, now)
	require.NoError(t, err)
	_, err = st.ClaimNextQueueEntry(ctx, "holder", time.Second, now)
	require.NoError(t, err)

	// The lease has expired but reclaim_stale hasn't run yet: claim_state is
	// still 'claimed', which extend must not treat as still-held.
	afterExpiry := now.Add(5 * time.Second)
	err = st.ExtendQueueEntryLease(ctx, rec.ID, "holder", time.Minute, afterExpiry)
	assert.ErrorIs(t, err, zjjerr.ErrNotLockHolder)

	got, err := st.GetQueueEntry(ctx, rec.ID)
	require.NoError(t, err)
	// Timestamps are stored at second precision, so the stored value is the
	// original expiry with its fraction of a second dropped.
	assert.WithinDuration(t, now.Add(time.Second).Truncate(time.Second), *got.ExpiresAt, time.Millisecond, "expires_at must be untouched by the rejected extend")
}

func TestExtendQueueEntryLeasePushesExpiryForward(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rec, err := st.EnqueueQueueEntry(ctx, EnqueueInput{Workspace: "w", Priority: 5, DedupeKey: "w"}, now)
	require.NoError(t, err)
	_, err = st.ClaimNextQueueEntry(ctx, "holder", time.Minute, now)
	require.NoError(t, err)

	extendAt := now.Add(30 * time.Second)
	require.NoError(t, st.ExtendQueueEntryLease(ctx, rec.ID, "holder", time.Minute, extendAt))

	got, err := st.GetQueueEntry(ctx, rec.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, extendAt.Add(time.Minute), *got.ExpiresAt, time.Second)
}

func TestReclaimStaleQueueEntriesReturnsExpiredClaimsToPending(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rec, err := st.EnqueueQueueEntry(ctx, EnqueueInput{Workspace: "w", Priority: 5, DedupeKey: "w"}, now)
	require.NoError(t, err)
	_, err = st.ClaimNextQueueEntry(ctx, "holder", time.Second, now)
	require.NoError(t, err)

	cutoff := now.Add(5 * time.Second)
	n, err := st.ReclaimStaleQueueEntries(ctx, cutoff, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetQueueEntry(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, QueuePending, got.Status)
	assert.Equal(t, ClaimUnclaimed, got.ClaimState)

	n, err = st.ReclaimStaleQueueEntries(ctx, cutoff, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second sweep is a no-op")
}

func TestEnqueueQueueEntryRejectsDuplicateDedupeKeyAmongNonTerminal(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := st.EnqueueQueueEntry(ctx, EnqueueInput{Workspace: "w1", Priority: 5, DedupeKey: "dk"}, now)
	require.NoError(t, err)

	_, err = st.EnqueueQueueEntry(ctx, EnqueueInput{Workspace: "w2", Priority: 5, DedupeKey: "dk"}, now)
	assert.ErrorIs(t, err, zjjerr.ErrAlreadyExists)
}

func TestCompleteQueueEntryFreesDedupeKeyForReuse(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rec, err := st.EnqueueQueueEntry(ctx, EnqueueInput{Workspace: "w1", Priority: 5, DedupeKey: "dk"}, now)
	require.NoError(t, err)
	require.NoError(t, st.CompleteQueueEntry(ctx, rec.ID, now))

	_, err = st.EnqueueQueueEntry(ctx, EnqueueInput{Workspace: "w2", Priority: 5, DedupeKey: "dk"}, now)
	assert.NoError(t, err, "a completed entry's dedupe key is no longer reserved")
}
