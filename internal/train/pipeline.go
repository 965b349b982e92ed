package train

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zjj-vcs/zjj/internal/events"
	"github.com/zjj-vcs/zjj/internal/store"
	"github.com/zjj-vcs/zjj/internal/workspace"
	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// runEntry drives one queue entry through Claimed -> Rebasing -> Gating ->
// Merging -> Completed/Failed (spec §4.8). The entry was selected eligible
// by the caller; runEntry claims it itself so the claim_agent recorded is
// the train processor's own identity, not whichever agent last touched it.
func (p *Processor) runEntry(ctx context.Context, entry store.QueueEntryRecord, cfg Config, gates []Gate, now time.Time) (pipelineOutcome, error) {
	claimed, err := p.Store.ClaimSpecificQueueEntry(ctx, entry.ID, cfg.Agent.String(), cfg.LockLease.Duration(), now)
	if err != nil {
		if errors.Is(err, zjjerr.ErrNotFound) {
			// Someone else claimed or cancelled it between selection and
			// claim; not this run's problem.
			return outcomeRetried, nil
		}
		return outcomeFailed, err
	}

	if p.Bus != nil {
		ev, evErr := events.NewWithPayload(events.QueueEntryClaimed, claimed.Workspace, now, claimed)
		if evErr == nil {
			p.Bus.Publish(ctx, ev)
		}
	}

	if cancelled, err := p.checkCancelled(ctx, claimed.ID); err != nil {
		return outcomeFailed, err
	} else if cancelled {
		return outcomeCancelled, nil
	}

	if err := p.Store.UpdateQueueEntryStatus(ctx, claimed.ID, store.QueueRebasing, time.Now()); err != nil {
		return outcomeFailed, err
	}
	rebaseOutcome, rebaseErr := p.Driver.Rebase(ctx, claimed.Workspace, cfg.Trunk)
	if outcome, done, err := p.handleStepError(ctx, claimed, cfg, "rebase", rebaseErr); done {
		return outcome, err
	}
	if !rebaseOutcome.Clean {
		return p.handleConflict(ctx, claimed, cfg, "rebase", rebaseOutcome.Conflict)
	}

	if cancelled, err := p.checkCancelled(ctx, claimed.ID); err != nil {
		return outcomeFailed, err
	} else if cancelled {
		return outcomeCancelled, nil
	}

	if err := p.Store.UpdateQueueEntryStatus(ctx, claimed.ID, store.QueueGating, time.Now()); err != nil {
		return outcomeFailed, err
	}
	for _, g := range gates {
		ok, reason, err := g.Check(ctx, claimed.Workspace)
		if err != nil {
			if outcome, done, herr := p.handleStepError(ctx, claimed, cfg, "gate:"+g.Name(), err); done {
				return outcome, herr
			}
		}
		if !ok {
			return p.fail(ctx, claimed, fmt.Sprintf("gate %q rejected: %s", g.Name(), reason), now)
		}
	}

	if cancelled, err := p.checkCancelled(ctx, claimed.ID); err != nil {
		return outcomeFailed, err
	} else if cancelled {
		return outcomeCancelled, nil
	}

	if err := p.Store.UpdateQueueEntryStatus(ctx, claimed.ID, store.QueueMerging, time.Now()); err != nil {
		return outcomeFailed, err
	}
	mergeOutcome, mergeErr := p.Driver.Merge(ctx, claimed.Workspace, cfg.Trunk)
	if outcome, done, err := p.handleStepError(ctx, claimed, cfg, "merge", mergeErr); done {
		return outcome, err
	}
	if !mergeOutcome.Clean {
		return p.handleConflict(ctx, claimed, cfg, "merge", mergeOutcome.Conflict)
	}

	if err := p.Driver.Push(ctx, cfg.Trunk); err != nil {
		if outcome, done, herr := p.handleStepError(ctx, claimed, cfg, "push", err); done {
			return outcome, herr
		}
	}

	if err := p.Store.CompleteQueueEntry(ctx, claimed.ID, time.Now()); err != nil {
		return outcomeFailed, err
	}
	if p.Bus != nil {
		ev, evErr := events.NewWithPayload(events.QueueEntryCompleted, claimed.Workspace, time.Now(),
			map[string]any{"id": claimed.ID, "outcome": "completed"})
		if evErr == nil {
			p.Bus.Publish(ctx, ev)
		}
	}
	return outcomeCompleted, nil
}

// checkCancelled re-reads the entry's status; an admin Cancel() can land
// between any two pipeline steps (spec §8 S6). The step already in flight
// always finishes; only the *next* step observes the cancellation.
func (p *Processor) checkCancelled(ctx context.Context, id int64) (bool, error) {
	rec, err := p.Store.GetQueueEntry(ctx, id)
	if err != nil {
		return false, err
	}
	if rec.Status == store.QueueCancelled {
		if p.Bus != nil {
			ev, evErr := events.NewWithPayload(events.QueueEntryCompleted, rec.Workspace, time.Now(),
				map[string]any{"id": id, "outcome": "cancelled"})
			if evErr == nil {
				p.Bus.Publish(ctx, ev)
			}
		}
		return true, nil
	}
	return false, nil
}

// handleStepError classifies a driver/gate error as Transient or Fatal
// (spec §4.8). Transient failures are retried up to cfg.MaxRetries, after
// which they become Fatal. done is true when the caller should stop
// processing this entry and return (outcome, err) as-is.
func (p *Processor) handleStepError(ctx context.Context, entry *store.QueueEntryRecord, cfg Config, step string, stepErr error) (pipelineOutcome, bool, error) {
	if stepErr == nil {
		return 0, false, nil
	}

	if errors.Is(stepErr, zjjerr.ErrFatal) {
		outcome, err := p.fail(ctx, entry, fmt.Sprintf("%s: %s", step, stepErr), time.Now())
		return outcome, true, err
	}

	if entry.RetryCount >= cfg.MaxRetries {
		outcome, err := p.fail(ctx, entry, fmt.Sprintf("%s: %s (max retries exhausted)", step, stepErr), time.Now())
		return outcome, true, err
	}

	if err := p.Store.IncrementRetryCount(ctx, entry.ID); err != nil {
		return outcomeFailed, true, err
	}
	if err := p.Store.ReleaseQueueEntry(ctx, entry.ID, time.Now()); err != nil {
		return outcomeFailed, true, err
	}
	return outcomeRetried, true, nil
}

// conflictRetryLimit is the fixed number of times a recurring conflict of a
// previously-resolved type is retried (spec §4.8: "up to 1 time"), deliberately
// independent of the operator-configured cfg.MaxRetries that governs plain
// Transient step failures.
const conflictRetryLimit = 1

// handleConflict consults the ConflictResolution memory before giving up:
// a conflict of a type already resolved once for this entry is treated as
// Transient (retry), anything novel is Fatal (spec §4.8 "ConflictResolution
// replay memory").
func (p *Processor) handleConflict(ctx context.Context, entry *store.QueueEntryRecord, cfg Config, step string, conflict *workspace.ConflictDetails) (pipelineOutcome, error) {
	if conflict == nil {
		return p.fail(ctx, entry, step+": unknown conflict", time.Now())
	}

	prior, err := p.Store.FindConflictResolution(ctx, entry.ID, conflict.Type)
	if err != nil {
		return outcomeFailed, err
	}
	if prior == nil {
		return p.fail(ctx, entry, fmt.Sprintf("%s conflict (%s): %s", step, conflict.Type, conflict.Summary), time.Now())
	}

	if entry.RetryCount >= conflictRetryLimit {
		return p.fail(ctx, entry, fmt.Sprintf("%s conflict (%s) recurred after prior %q resolution", step, conflict.Type, prior.ResolutionStrategy), time.Now())
	}
	if err := p.Store.IncrementRetryCount(ctx, entry.ID); err != nil {
		return outcomeFailed, err
	}
	if err := p.Store.ReleaseQueueEntry(ctx, entry.ID, time.Now()); err != nil {
		return outcomeFailed, err
	}
	return outcomeRetried, nil
}

func (p *Processor) fail(ctx context.Context, entry *store.QueueEntryRecord, reason string, now time.Time) (pipelineOutcome, error) {
	if err := p.Store.FailQueueEntry(ctx, entry.ID, reason, now); err != nil {
		return outcomeFailed, err
	}
	if p.Bus != nil {
		ev, evErr := events.NewWithPayload(events.QueueEntryCompleted, entry.Workspace, now,
			map[string]any{"id": entry.ID, "outcome": "failed", "reason": reason})
		if evErr == nil {
			p.Bus.Publish(ctx, ev)
		}
	}
	return outcomeFailed, nil
}
