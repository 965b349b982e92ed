// Package recovery implements the Recovery Engine (spec §4.9): an
// opportunistic sweep run before contested operations (claim_next,
// processing-lock acquire), an explicit ReconcileCreatingSessions pass for
// sessions left in Creating, and OpenWithPolicy, which applies the
// three-level policy (silent/warn/fail-fast) governing response to an
// unreadable or malformed Store file.
package recovery

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/zjj-vcs/zjj/internal/config"
	"github.com/zjj-vcs/zjj/internal/events"
	"github.com/zjj-vcs/zjj/internal/store"
)

const (
	KindLockReaped         = "LockReaped"
	KindEntryReclaimed     = "EntryReclaimed"
	KindIncompleteCreate   = "IncompleteCreate"
	KindStoreCorruption    = "StoreCorruption"
	KindPermissionRepaired = "PermissionRepaired"
)

// Engine runs the detections spec §4.9 tabulates.
type Engine struct {
	Store  *store.Store
	Bus    *events.Bus
	Policy config.RecoveryPolicy
	// LogEnabled mirrors config.Config.RecoveryLogEnabled: when false, no
	// recovery_log rows are written, though the sweep's in-memory Report is
	// unaffected (spec does not make log-writing a precondition for acting).
	LogEnabled bool
}

// Report summarizes one sweep's findings, for both the mutating Sweep and
// the observational GetStats (spec §4.9: "returns what would be cleaned
// without mutating").
type Report struct {
	LocksReaped        int
	EntriesReclaimed   int
	IncompleteCreates  int
}

// Sweep runs the opportunistic detect-and-self-heal pass: reap an expired
// processing lock and reclaim expired queue claims. It does not touch
// session Creating-row reclassification or Store corruption — those are
// handled by ReconcileCreatingSessions, which additionally needs a
// working-copy existence check, and by OpenWithPolicy; both are invoked
// explicitly rather than on every claim_next/acquire call.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (Report, error) {
	var report Report

	stale, err := e.Store.IsProcessingLockStale(ctx, now)
	if err != nil {
		return report, err
	}
	if stale {
		lock, err := e.Store.GetProcessingLock(ctx)
		if err != nil {
			return report, err
		}
		if lock != nil {
			if err := e.Store.ReleaseProcessingLock(ctx, lock.AgentID); err != nil {
				return report, err
			}
			report.LocksReaped = 1
			if err := e.log(ctx, KindLockReaped, "agent="+lock.AgentID, now); err != nil {
				return report, err
			}
		}
	}

	n, err := e.Store.ReclaimStaleQueueEntries(ctx, now, now)
	if err != nil {
		return report, err
	}
	report.EntriesReclaimed = n
	if n > 0 {
		if err := e.log(ctx, KindEntryReclaimed, "count="+itoa(n), now); err != nil {
			return report, err
		}
	}

	return report, nil
}

// GetStats is Sweep's non-mutating twin: it reports what a Sweep call
// would clean right now, without changing any state (spec §4.9
// observational probe).
func (e *Engine) GetStats(ctx context.Context, now time.Time) (Report, error) {
	var report Report

	stale, err := e.Store.IsProcessingLockStale(ctx, now)
	if err != nil {
		return report, err
	}
	if stale {
		report.LocksReaped = 1
	}

	entries, err := e.Store.ListQueueEntries(ctx, statusPtr(store.QueueClaimed))
	if err != nil {
		return report, err
	}
	for _, en := range entries {
		if en.ExpiresAt != nil && en.ExpiresAt.Before(now) {
			report.EntriesReclaimed++
		}
	}

	return report, nil
}

// ReconcileCreatingSessions handles the two Creating-row detections (spec
// §4.9): a threshold-old Creating row with no working copy is deleted; one
// with a working copy present is promoted to Ready. hasWorkingCopy is
// supplied by the caller (the Session Manager / CLI boundary), since
// filesystem existence checks are a workspace concern this package does
// not import to avoid a cycle with internal/workspace.
func (e *Engine) ReconcileCreatingSessions(ctx context.Context, threshold time.Duration, now time.Time, hasWorkingCopy func(name, path string) bool) (int, error) {
	sessions, err := e.Store.ListSessions(ctx, store.SessionFilter{})
	if err != nil {
		return 0, err
	}
	reconciled := 0
	for _, s := range sessions {
		if s.Status != store.SessionCreating {
			continue
		}
		if now.Sub(s.UpdatedAt) < threshold {
			continue
		}
		if hasWorkingCopy(s.Name, s.WorkspacePath) {
			if err := e.promoteToReady(ctx, s.Name, now); err != nil {
				return reconciled, err
			}
		} else {
			if err := e.deleteIncomplete(ctx, s.Name); err != nil {
				return reconciled, err
			}
			if err := e.log(ctx, KindIncompleteCreate, "name="+s.Name, now); err != nil {
				return reconciled, err
			}
		}
		reconciled++
	}
	return reconciled, nil
}

func (e *Engine) promoteToReady(ctx context.Context, name string, now time.Time) error {
	return e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.Store.UpdateSessionStatusTx(ctx, tx, name, store.SessionReady, now)
	})
}

func (e *Engine) deleteIncomplete(ctx context.Context, name string) error {
	return e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.Store.DeleteSessionTx(ctx, tx, name)
	})
}

func (e *Engine) log(ctx context.Context, kind, details string, now time.Time) error {
	if !e.LogEnabled {
		return nil
	}
	return e.Store.AppendRecoveryLog(ctx, kind, details, string(e.Policy), now)
}

func statusPtr(s store.QueueStatus) *store.QueueStatus { return &s }

func itoa(n int) string {
	return strconv.Itoa(n)
}
