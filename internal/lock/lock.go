// Package lock implements the Lock Manager (spec §4.7): the single-writer
// processing lock a Train Processor run must hold for its entire lifetime.
// Acquisition never blocks — callers loop with capped backoff on failure
// (spec §4.7, §5).
package lock

import (
	"context"
	"time"

	"github.com/zjj-vcs/zjj/internal/ids"
	"github.com/zjj-vcs/zjj/internal/store"
)

// Manager wraps a Store with the processing lock's operation set.
type Manager struct {
	Store *store.Store
}

// Acquire takes the lock if unheld or expired (spec §4.7 UPSERT contract).
// A false-ish "lock unavailable" result is returned as an error
// (zjjerr.ErrNotLockHolder) rather than a bool, so callers use errors.Is
// consistently with the rest of the domain; the caller loop described in
// spec §4.7 is: `for { if err := Acquire(...); err == nil { break }; backoff() }`.
func (m *Manager) Acquire(ctx context.Context, agent ids.AgentId, lease ids.LeaseSeconds, now time.Time) (*store.ProcessingLockRecord, error) {
	return m.Store.AcquireProcessingLock(ctx, agent.String(), lease.Duration(), now)
}

// Release drops the lock if agent currently holds it.
func (m *Manager) Release(ctx context.Context, agent ids.AgentId) error {
	return m.Store.ReleaseProcessingLock(ctx, agent.String())
}

// Extend pushes the lock's expiry forward, owner-checked. The Train
// Processor calls this between per-entry pipeline steps (spec §4.8 step 3:
// "heartbeat-extend the processing lock").
func (m *Manager) Extend(ctx context.Context, agent ids.AgentId, additional ids.LeaseSeconds, now time.Time) error {
	return m.Store.ExtendProcessingLock(ctx, agent.String(), additional.Duration(), now)
}

// IsStale reports whether the lock (if held at all) has expired.
func (m *Manager) IsStale(ctx context.Context, now time.Time) (bool, error) {
	return m.Store.IsProcessingLockStale(ctx, now)
}

// Current reports the current holder, or nil if unheld.
func (m *Manager) Current(ctx context.Context) (*store.ProcessingLockRecord, error) {
	return m.Store.GetProcessingLock(ctx)
}
