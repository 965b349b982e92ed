// Package queue implements the Queue component (spec §4.6): enqueue with
// dedup, lease-based claim/release/extend, completion/cancellation, and
// stale-claim reclamation, all delegated to internal/store's transactional
// primitives.
package queue

import (
	"context"
	"time"

	"github.com/zjj-vcs/zjj/internal/events"
	"github.com/zjj-vcs/zjj/internal/ids"
	"github.com/zjj-vcs/zjj/internal/store"
)

// Status/ClaimState are re-exported so callers rarely need internal/store directly.
type Status = store.QueueStatus
type ClaimState = store.ClaimState

const (
	Pending   = store.QueuePending
	Claimed   = store.QueueClaimed
	Rebasing  = store.QueueRebasing
	Gating    = store.QueueGating
	Merging   = store.QueueMerging
	Completed = store.QueueCompleted
	Failed    = store.QueueFailed
	Cancelled = store.QueueCancelled
)

// Queue wraps a Store with the Queue component's operation set.
type Queue struct {
	Store *store.Store
	Bus   *events.Bus
}

// EnqueueInput mirrors store.EnqueueInput but at the validated-types boundary.
type EnqueueInput struct {
	Workspace       ids.WorkspaceName
	BeadID          string
	Priority        ids.Priority
	DedupeKey       string
	ParentWorkspace string
}

// Enqueue inserts a pending entry, or returns the existing non-terminal
// entry's id unchanged if DedupeKey collides (spec §4.6, Property 3, S3).
func (q *Queue) Enqueue(ctx context.Context, in EnqueueInput, now time.Time) (*store.QueueEntryRecord, error) {
	rec, err := q.Store.EnqueueQueueEntry(ctx, store.EnqueueInput{
		Workspace:       in.Workspace.String(),
		BeadID:          in.BeadID,
		Priority:        in.Priority.Int(),
		DedupeKey:       in.DedupeKey,
		ParentWorkspace: in.ParentWorkspace,
	}, now)
	if err != nil {
		if existing, findErr := q.findByDedupeKey(ctx, in.DedupeKey); findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	if q.Bus != nil {
		ev, evErr := events.NewWithPayload(events.QueueEntryAdded, in.Workspace.String(), now, rec)
		if evErr == nil {
			q.Bus.Publish(ctx, ev)
		}
	}
	return rec, nil
}

func (q *Queue) findByDedupeKey(ctx context.Context, dedupeKey string) (*store.QueueEntryRecord, error) {
	entries, err := q.Store.ListQueueEntries(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		e := &entries[i]
		if e.DedupeKey == dedupeKey && e.Status != Completed && e.Status != Failed && e.Status != Cancelled {
			return e, nil
		}
	}
	return nil, nil
}

// ClaimNext atomically claims the highest-priority, oldest-submitted
// unclaimed pending entry for agent. Callers should run a Recovery Engine
// sweep immediately before calling this, per spec §4.9's "opportunistically
// before claim_next" rule; Queue itself does not run the sweep (the
// `queue claim` command in cmd/zjj calls Engine.Sweep first).
func (q *Queue) ClaimNext(ctx context.Context, agent ids.AgentId, lease ids.LeaseSeconds, now time.Time) (*store.QueueEntryRecord, error) {
	rec, err := q.Store.ClaimNextQueueEntry(ctx, agent.String(), lease.Duration(), now)
	if err != nil || rec == nil {
		return rec, err
	}
	if q.Bus != nil {
		ev, evErr := events.NewWithPayload(events.QueueEntryClaimed, rec.Workspace, now, rec)
		if evErr == nil {
			q.Bus.Publish(ctx, ev)
		}
	}
	return rec, nil
}

// Release returns id to Pending/Unclaimed if agent currently holds it.
func (q *Queue) Release(ctx context.Context, id ids.QueueEntryId, agent ids.AgentId, now time.Time) error {
	rec, err := q.Store.GetQueueEntry(ctx, id.Int64())
	if err != nil {
		return err
	}
	if err := requireHolder(rec, agent); err != nil {
		return err
	}
	return q.Store.ReleaseQueueEntry(ctx, id.Int64(), now)
}

// Extend pushes id's lease forward by additional, owner-checked.
func (q *Queue) Extend(ctx context.Context, id ids.QueueEntryId, agent ids.AgentId, additional ids.LeaseSeconds, now time.Time) error {
	return q.Store.ExtendQueueEntryLease(ctx, id.Int64(), agent.String(), additional.Duration(), now)
}

// Complete marks id Completed, owner-checked.
func (q *Queue) Complete(ctx context.Context, id ids.QueueEntryId, agent ids.AgentId, now time.Time) error {
	rec, err := q.Store.GetQueueEntry(ctx, id.Int64())
	if err != nil {
		return err
	}
	if err := requireHolder(rec, agent); err != nil {
		return err
	}
	if err := q.Store.CompleteQueueEntry(ctx, id.Int64(), now); err != nil {
		return err
	}
	if q.Bus != nil {
		ev, evErr := events.NewWithPayload(events.QueueEntryCompleted, rec.Workspace, now, map[string]any{"id": id.Int64(), "outcome": "completed"})
		if evErr == nil {
			q.Bus.Publish(ctx, ev)
		}
	}
	return nil
}

// Cancel transitions any non-terminal entry to Cancelled (admin-level, no owner check).
func (q *Queue) Cancel(ctx context.Context, id ids.QueueEntryId, now time.Time) error {
	if err := q.Store.CancelQueueEntry(ctx, id.Int64(), now); err != nil {
		return err
	}
	if q.Bus != nil {
		rec, err := q.Store.GetQueueEntry(ctx, id.Int64())
		if err == nil {
			ev, evErr := events.NewWithPayload(events.QueueEntryCompleted, rec.Workspace, now, map[string]any{"id": id.Int64(), "outcome": "cancelled"})
			if evErr == nil {
				q.Bus.Publish(ctx, ev)
			}
		}
	}
	return nil
}

// ReclaimStale returns all entries whose lease has expired for more than
// threshold back to Pending, reporting how many it touched. Idempotent:
// a second call with the same threshold against unchanged state returns 0
// (Property 6).
func (q *Queue) ReclaimStale(ctx context.Context, threshold time.Duration, now time.Time) (int, error) {
	return q.Store.ReclaimStaleQueueEntries(ctx, now, now.Add(-threshold))
}

// Get fetches one entry by id.
func (q *Queue) Get(ctx context.Context, id ids.QueueEntryId) (*store.QueueEntryRecord, error) {
	return q.Store.GetQueueEntry(ctx, id.Int64())
}

// GetByWorkspace fetches the active entry for a workspace, if any.
func (q *Queue) GetByWorkspace(ctx context.Context, name ids.WorkspaceName) (*store.QueueEntryRecord, error) {
	return q.Store.GetQueueEntryByWorkspace(ctx, name.String())
}

// List returns entries, optionally filtered by status, in claim order.
func (q *Queue) List(ctx context.Context, status *Status) ([]store.QueueEntryRecord, error) {
	return q.Store.ListQueueEntries(ctx, status)
}

// Stats summarizes queue depth by status.
func (q *Queue) Stats(ctx context.Context) (store.QueueStats, error) {
	return q.Store.QueueEntryStats(ctx)
}

func requireHolder(rec *store.QueueEntryRecord, agent ids.AgentId) error {
	if rec.ClaimAgent != agent.String() {
		return errNotHolder(rec.ID, agent.String())
	}
	return nil
}
