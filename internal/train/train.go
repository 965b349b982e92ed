// Package train implements the Train Processor (spec §4.8): the
// single-writer pipeline that drains the queue onto the trunk through
// rebase, quality gates, and merge, with retry/fatal classification and
// stack-aware ordering.
package train

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zjj-vcs/zjj/internal/events"
	"github.com/zjj-vcs/zjj/internal/ids"
	"github.com/zjj-vcs/zjj/internal/lock"
	"github.com/zjj-vcs/zjj/internal/queue"
	"github.com/zjj-vcs/zjj/internal/session"
	"github.com/zjj-vcs/zjj/internal/store"
	"github.com/zjj-vcs/zjj/internal/workspace"
	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// Config carries the per-run tunables spec §4.8 lists as "Inputs": the
// gate list, retry budget, and (implicitly) the trunk name the driver
// rebases/merges onto.
type Config struct {
	Trunk      string
	GateNames  []string
	MaxRetries int
	Agent      ids.AgentId
	LockLease  ids.LeaseSeconds
	// HeartbeatEvery controls how often Extend is called on the processing
	// lock while the train works through its selected entries; it does not
	// gate per-step work, only lock renewal cadence (spec §4.8 step 3).
	HeartbeatEvery time.Duration
	// AcquireRetryBudget bounds how long Run retries a contended processing
	// lock before giving up (spec §4.7: acquisition never blocks indefinitely,
	// callers retry with bounded backoff). Zero means try exactly once.
	AcquireRetryBudget time.Duration
}

// Processor orchestrates one train run.
type Processor struct {
	Store    *store.Store
	Queue    *queue.Queue
	Lock     *lock.Manager
	Sessions *session.Manager
	Driver   workspace.Driver
	Registry *Registry
	Bus      *events.Bus
}

// RunSummary reports what one Run call did.
type RunSummary struct {
	Landed    []int64
	Failed    []int64
	Cancelled []int64
}

// Run performs one full train pass (spec §4.8): acquire the processing
// lock (abort if contested), select eligible entries in priority order,
// run each through the per-entry pipeline, heartbeat the lock between
// entries, release on exit.
func (p *Processor) Run(ctx context.Context, cfg Config, now time.Time) (RunSummary, error) {
	var summary RunSummary

	if err := p.acquireWithBackoff(ctx, cfg, now); err != nil {
		return summary, fmt.Errorf("acquire processing lock: %w", err)
	}
	defer func() { _ = p.Lock.Release(ctx, cfg.Agent) }()

	gates, err := p.Registry.Ordered(cfg.GateNames)
	if err != nil {
		return summary, err
	}

	entries, err := p.selectEligible(ctx)
	if err != nil {
		return summary, err
	}

	lastHeartbeat := now
	for _, entry := range entries {
		if time.Since(lastHeartbeat) >= cfg.HeartbeatEvery && cfg.HeartbeatEvery > 0 {
			if err := p.Lock.Extend(ctx, cfg.Agent, cfg.LockLease, time.Now()); err != nil {
				return summary, fmt.Errorf("heartbeat processing lock: %w", err)
			}
			lastHeartbeat = time.Now()
		}

		outcome, err := p.runEntry(ctx, entry, cfg, gates, time.Now())
		if err != nil {
			return summary, err
		}
		switch outcome {
		case outcomeCompleted:
			summary.Landed = append(summary.Landed, entry.ID)
		case outcomeFailed:
			summary.Failed = append(summary.Failed, entry.ID)
		case outcomeCancelled:
			summary.Cancelled = append(summary.Cancelled, entry.ID)
		case outcomeRetried:
			// stays Pending; not reported as landed/failed this run
		}
	}

	return summary, nil
}

// acquireWithBackoff retries a contended processing lock up to
// cfg.AcquireRetryBudget with capped exponential backoff before giving up,
// rather than blocking indefinitely (spec §4.7).
func (p *Processor) acquireWithBackoff(ctx context.Context, cfg Config, now time.Time) error {
	if cfg.AcquireRetryBudget <= 0 {
		_, err := p.Lock.Acquire(ctx, cfg.Agent, cfg.LockLease, now)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.AcquireRetryBudget
	bctx := backoff.WithContext(b, ctx)

	return backoff.Retry(func() error {
		_, err := p.Lock.Acquire(ctx, cfg.Agent, cfg.LockLease, time.Now())
		return err
	}, bctx)
}

type pipelineOutcome int

const (
	outcomeCompleted pipelineOutcome = iota
	outcomeFailed
	outcomeCancelled
	outcomeRetried
)

// selectEligible returns claimable entries in claim order, filtering out
// any whose parent_workspace has not yet reached Completed (spec §4.8
// "Stack-aware ordering"). This is evaluated at selection time only — a
// parent completing mid-run does not retroactively admit a child already
// skipped this pass.
func (p *Processor) selectEligible(ctx context.Context) ([]store.QueueEntryRecord, error) {
	pending, err := p.Store.ListQueueEntries(ctx, statusPtr(store.QueuePending))
	if err != nil {
		return nil, err
	}

	eligible := make([]store.QueueEntryRecord, 0, len(pending))
	for _, e := range pending {
		if e.ParentWorkspace == "" {
			eligible = append(eligible, e)
			continue
		}
		parentEntry, err := p.Store.GetQueueEntryByWorkspace(ctx, e.ParentWorkspace)
		if err != nil && !errors.Is(err, zjjerr.ErrNotFound) {
			return nil, err
		}
		// No active parent entry means either it already landed and was
		// cleaned up, or it was merged outside the queue entirely — both
		// satisfy "parent Completed or no longer exists" (spec §4.8).
		if parentEntry == nil {
			eligible = append(eligible, e)
		}
	}
	return eligible, nil
}

func statusPtr(s store.QueueStatus) *store.QueueStatus { return &s }
