package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// ProcessingLockRecord is the singleton row in processing_lock, tracking
// which agent currently owns the Train Processor's run loop (spec §4.7).
type ProcessingLockRecord struct {
	AgentID    string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// AcquireProcessingLock takes the singleton lock if it is unheld or expired,
// in one UPSERT conditioned on the expiry (spec §4.7: "acquire is an
// UPSERT guarded by expires_at < now"). Returns zjjerr.ErrNotLockHolder
// (reused here to mean "lock unavailable") when a live holder blocks it.
func (s *Store) AcquireProcessingLock(ctx context.Context, agentID string, lease time.Duration, now time.Time) (*ProcessingLockRecord, error) {
	expiresAt := now.Add(lease)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_lock (id, agent_id, acquired_at, expires_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_id = excluded.agent_id,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE processing_lock.expires_at < ?
	`, agentID, formatTime(now), formatTime(expiresAt), formatTime(now))
	if err != nil {
		return nil, wrapDBError("acquire processing lock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, wrapDBError("acquire processing lock: rows affected", err)
	}
	if n == 0 {
		return nil, zjjerr.ErrNotLockHolder
	}
	return &ProcessingLockRecord{AgentID: agentID, AcquiredAt: now, ExpiresAt: expiresAt}, nil
}

// ReleaseProcessingLock releases the lock if agentID currently holds it.
func (s *Store) ReleaseProcessingLock(ctx context.Context, agentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processing_lock WHERE id = 1 AND agent_id = ?`, agentID)
	if err != nil {
		return wrapDBError("release processing lock", err)
	}
	return checkRowsAffected(res, "processing lock held by %s", agentID)
}

// ExtendProcessingLock pushes the lock's expires_at forward, failing with
// zjjerr.ErrNotLockHolder if agentID is not the current holder.
func (s *Store) ExtendProcessingLock(ctx context.Context, agentID string, lease time.Duration, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_lock SET expires_at = ? WHERE id = 1 AND agent_id = ?
	`, formatTime(now.Add(lease)), agentID)
	if err != nil {
		return wrapDBError("extend processing lock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("extend processing lock: rows affected", err)
	}
	if n == 0 {
		return zjjerr.ErrNotLockHolder
	}
	return nil
}

// GetProcessingLock reports the current holder, or nil if unheld.
func (s *Store) GetProcessingLock(ctx context.Context) (*ProcessingLockRecord, error) {
	var rec ProcessingLockRecord
	var acquiredAt, expiresAt string
	err := s.db.QueryRowContext(ctx, `SELECT agent_id, acquired_at, expires_at FROM processing_lock WHERE id = 1`).
		Scan(&rec.AgentID, &acquiredAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBError("get processing lock", err)
	}
	if rec.AcquiredAt, err = parseTime(acquiredAt); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// IsProcessingLockStale reports whether the lock (if held) has expired as of now.
func (s *Store) IsProcessingLockStale(ctx context.Context, now time.Time) (bool, error) {
	lock, err := s.GetProcessingLock(ctx)
	if err != nil {
		return false, err
	}
	if lock == nil {
		return false, nil
	}
	return lock.ExpiresAt.Before(now), nil
}
