package train

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjj-vcs/zjj/internal/events"
	"github.com/zjj-vcs/zjj/internal/ids"
	"github.com/zjj-vcs/zjj/internal/lock"
	"github.com/zjj-vcs/zjj/internal/queue"
	"github.com/zjj-vcs/zjj/internal/session"
	"github.com/zjj-vcs/zjj/internal/store"
	"github.com/zjj-vcs/zjj/internal/workspace"
)

func newTestProcessor(t *testing.T) (*Processor, *store.Store, *workspace.Fake) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fake := workspace.NewFake()
	bus := events.New()
	q := &queue.Queue{Store: st, Bus: bus}
	lm := &lock.Manager{Store: st}
	sm := &session.Manager{Store: st, Driver: fake, Bus: bus, LocksDir: filepath.Join(dir, "locks"), Workspaces: filepath.Join(dir, "workspaces")}
	reg := NewRegistry()

	return &Processor{Store: st, Queue: q, Lock: lm, Sessions: sm, Driver: fake, Registry: reg, Bus: bus}, st, fake
}

func testConfig(t *testing.T) Config {
	t.Helper()
	agent, err := ids.ParseAgentId("train-agent")
	require.NoError(t, err)
	lease, err := ids.ParseLeaseSeconds(60)
	require.NoError(t, err)
	return Config{Trunk: "trunk", MaxRetries: 2, Agent: agent, LockLease: lease, HeartbeatEvery: time.Minute}
}

func enqueue(t *testing.T, st *store.Store, workspaceName string, priority int, parent string, now time.Time) *store.QueueEntryRecord {
	t.Helper()
	rec, err := st.EnqueueQueueEntry(context.Background(), store.EnqueueInput{
		Workspace:       workspaceName,
		BeadID:          "bd-" + workspaceName,
		Priority:        priority,
		DedupeKey:       "dk-" + workspaceName,
		ParentWorkspace: parent,
	}, now)
	require.NoError(t, err)
	return rec
}

func TestRunLandsSingleCleanEntry(t *testing.T) {
	p, st, _ := newTestProcessor(t)
	ctx := context.Background()
	now := time.Now()

	entry := enqueue(t, st, "alpha", 100, "", now)

	summary, err := p.Run(ctx, testConfig(t), now)
	require.NoError(t, err)
	assert.Equal(t, []int64{entry.ID}, summary.Landed)

	got, err := st.GetQueueEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, store.QueueCompleted, got.Status)
}

// TestStackedEntryWaitsForParent (S4): a child entry whose parent_workspace
// still has an active queue entry is not selected even though it has
// higher priority (lower number) than the parent.
func TestStackedEntryWaitsForParent(t *testing.T) {
	p, st, fake := newTestProcessor(t)
	ctx := context.Background()
	now := time.Now()

	parent := enqueue(t, st, "base", 500, "", now)
	child := enqueue(t, st, "stacked", 10, "base", now)

	fake.RebaseResult["base"] = workspace.RebaseOutcome{
		Clean:    false,
		Conflict: &workspace.ConflictDetails{Type: "content", Summary: "hold parent open"},
	}

	summary, err := p.Run(ctx, testConfig(t), now)
	require.NoError(t, err)
	assert.NotContains(t, summary.Landed, child.ID)
	assert.NotContains(t, summary.Failed, child.ID)

	childRow, err := st.GetQueueEntry(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, store.QueuePending, childRow.Status, "child must stay pending while parent entry is still active")

	parentRow, err := st.GetQueueEntry(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, store.QueueFailed, parentRow.Status, "an unresolved conflict with no prior ConflictResolution is fatal")
}

// TestStackedEntryRunsAfterParentCompletes (S4): once the parent's entry is
// gone (landed), the child becomes eligible on the next run.
func TestStackedEntryRunsAfterParentCompletes(t *testing.T) {
	p, st, _ := newTestProcessor(t)
	ctx := context.Background()
	now := time.Now()

	enqueue(t, st, "base", 500, "", now)
	child := enqueue(t, st, "stacked", 10, "base", now)

	summary, err := p.Run(ctx, testConfig(t), now)
	require.NoError(t, err)
	assert.NotContains(t, summary.Landed, child.ID, "child must not land in the same run its parent is still claimed")

	// Parent landed cleanly in the first run, so no active entry remains
	// for "base" and the child is eligible on the next pass.
	summary2, err := p.Run(ctx, testConfig(t), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Contains(t, summary2.Landed, child.ID)
}

// TestCancellationDuringTrainStep (S6): an entry Cancelled while claimed is
// observed at the next step boundary and the pipeline stops advancing it
// further, without ever marking it Completed or Failed.
func TestCancellationDuringTrainStep(t *testing.T) {
	p, st, _ := newTestProcessor(t)
	ctx := context.Background()
	now := time.Now()

	entry := enqueue(t, st, "gamma", 100, "", now)
	claimed, err := st.ClaimSpecificQueueEntry(ctx, entry.ID, "train-agent", time.Minute, now)
	require.NoError(t, err)

	// An operator cancels between the claim and the rebase step completing.
	require.NoError(t, st.CancelQueueEntry(ctx, claimed.ID, now))

	cancelled, err := p.checkCancelled(ctx, claimed.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	row, err := st.GetQueueEntry(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, store.QueueCancelled, row.Status)
}
