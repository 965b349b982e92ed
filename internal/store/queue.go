package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// QueueStatus mirrors the QueueEntry lifecycle (spec §4.6).
type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueClaimed   QueueStatus = "claimed"
	QueueRebasing  QueueStatus = "rebasing"
	QueueGating    QueueStatus = "gating"
	QueueMerging   QueueStatus = "merging"
	QueueCompleted QueueStatus = "completed"
	QueueFailed    QueueStatus = "failed"
	QueueCancelled QueueStatus = "cancelled"
)

// ClaimState discriminates claimed/unclaimed independent of status, so a
// reclaimed-from-expiry entry can return to pending/unclaimed without
// losing its place in submission order.
type ClaimState string

const (
	ClaimUnclaimed ClaimState = "unclaimed"
	ClaimHeld      ClaimState = "claimed"
)

// QueueEntryRecord is the persisted shape of a queue_entries row.
type QueueEntryRecord struct {
	ID              int64
	Workspace       string
	BeadID          string
	Priority        int
	Status          QueueStatus
	ClaimState      ClaimState
	ClaimAgent      string
	ClaimedAt       *time.Time
	ExpiresAt       *time.Time
	PrevAgent       string
	ExpiredAt       *time.Time
	SubmittedAt     time.Time
	StateChangedAt  time.Time
	StartedAt       *time.Time
	DedupeKey       string
	RetryCount      int
	ParentWorkspace string
	LastError       string
}

// EnqueueInput is the subset of QueueEntryRecord the caller supplies; the
// rest (status, claim state, timestamps, id) is assigned by Enqueue.
type EnqueueInput struct {
	Workspace       string
	BeadID          string
	Priority        int
	DedupeKey       string
	ParentWorkspace string
}

// Enqueue inserts a new pending entry. If an unresolved (non-terminal) entry
// already shares DedupeKey, the unique partial index idx_queue_dedupe_nonterminal
// rejects the insert and Enqueue returns zjjerr.ErrAlreadyExists (spec §4.6
// dedup invariant), leaving the existing entry untouched.
func (s *Store) EnqueueQueueEntry(ctx context.Context, in EnqueueInput, now time.Time) (*QueueEntryRecord, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_entries (
			workspace, bead_id, priority, status, claim_state, claim_agent,
			submitted_at, state_changed_at, dedupe_key, retry_count, parent_workspace
		) VALUES (?, ?, ?, ?, ?, '', ?, ?, ?, 0, ?)
	`, in.Workspace, in.BeadID, in.Priority, string(QueuePending), string(ClaimUnclaimed),
		formatTime(now), formatTime(now), in.DedupeKey, in.ParentWorkspace)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, fmt.Errorf("dedupe key %q already active: %w", in.DedupeKey, zjjerr.ErrAlreadyExists)
		}
		return nil, wrapDBErrorf(err, "enqueue %s", in.Workspace)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrapDBError("enqueue: last insert id", err)
	}
	return s.GetQueueEntry(ctx, id)
}

func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "constraint failed")
}

// ClaimNextQueueEntry atomically selects and claims the highest-priority,
// oldest-submitted unclaimed pending entry, in one UPDATE...RETURNING
// statement (spec §9's own suggested implementation strategy). No
// intervening SELECT means no window for two agents to claim the same row:
// SQLite serializes writers against the single connection this Store holds.
func (s *Store) ClaimNextQueueEntry(ctx context.Context, agentID string, lease time.Duration, now time.Time) (*QueueEntryRecord, error) {
	expiresAt := now.Add(lease)
	row := s.db.QueryRowContext(ctx, `
		UPDATE queue_entries
		SET status = ?, claim_state = ?, claim_agent = ?, claimed_at = ?, expires_at = ?,
		    state_changed_at = ?, started_at = COALESCE(started_at, ?)
		WHERE id = (
			SELECT id FROM queue_entries
			WHERE status = ? AND claim_state = ?
			ORDER BY priority ASC, submitted_at ASC, id ASC
			LIMIT 1
		)
		RETURNING id, workspace, bead_id, priority, status, claim_state, claim_agent,
		          claimed_at, expires_at, prev_agent, expired_at, submitted_at,
		          state_changed_at, started_at, dedupe_key, retry_count, parent_workspace, last_error
	`, string(QueueClaimed), string(ClaimHeld), agentID, formatTime(now), formatTime(expiresAt),
		formatTime(now), formatTime(now), string(QueuePending), string(ClaimUnclaimed))

	rec, err := scanQueueEntry(row)
	if err != nil {
		if isNotFound(err) {
			return nil, nil // empty queue; not an error (spec §4.6: claim_next on empty queue returns none)
		}
		return nil, wrapDBError("claim next queue entry", err)
	}
	return rec, nil
}

// ClaimSpecificQueueEntry claims id by its own row rather than "whichever is
// next", used by the Train Processor once it has already computed the
// stack-aware eligible set (spec §4.8 step 2: selection and claim are
// distinct steps there, unlike the single-entry-point Queue.ClaimNext).
// Returns zjjerr.ErrNotFound if id is no longer pending/unclaimed.
func (s *Store) ClaimSpecificQueueEntry(ctx context.Context, id int64, agentID string, lease time.Duration, now time.Time) (*QueueEntryRecord, error) {
	expiresAt := now.Add(lease)
	row := s.db.QueryRowContext(ctx, `
		UPDATE queue_entries
		SET status = ?, claim_state = ?, claim_agent = ?, claimed_at = ?, expires_at = ?,
		    state_changed_at = ?, started_at = COALESCE(started_at, ?)
		WHERE id = ? AND status = ? AND claim_state = ?
		RETURNING id, workspace, bead_id, priority, status, claim_state, claim_agent,
		          claimed_at, expires_at, prev_agent, expired_at, submitted_at,
		          state_changed_at, started_at, dedupe_key, retry_count, parent_workspace, last_error
	`, string(QueueClaimed), string(ClaimHeld), agentID, formatTime(now), formatTime(expiresAt),
		formatTime(now), formatTime(now), id, string(QueuePending), string(ClaimUnclaimed))

	rec, err := scanQueueEntry(row)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("queue entry %d: %w", id, zjjerr.ErrNotFound)
		}
		return nil, wrapDBError("claim specific queue entry", err)
	}
	return rec, nil
}

// GetQueueEntry fetches one entry by id.
func (s *Store) GetQueueEntry(ctx context.Context, id int64) (*QueueEntryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace, bead_id, priority, status, claim_state, claim_agent,
		       claimed_at, expires_at, prev_agent, expired_at, submitted_at,
		       state_changed_at, started_at, dedupe_key, retry_count, parent_workspace, last_error
		FROM queue_entries WHERE id = ?
	`, id)
	return scanQueueEntry(row)
}

// GetQueueEntryByWorkspace fetches the most recent non-terminal entry for a workspace, if any.
func (s *Store) GetQueueEntryByWorkspace(ctx context.Context, workspace string) (*QueueEntryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace, bead_id, priority, status, claim_state, claim_agent,
		       claimed_at, expires_at, prev_agent, expired_at, submitted_at,
		       state_changed_at, started_at, dedupe_key, retry_count, parent_workspace, last_error
		FROM queue_entries
		WHERE workspace = ? AND status NOT IN ('completed', 'failed', 'cancelled')
		ORDER BY id DESC LIMIT 1
	`, workspace)
	return scanQueueEntry(row)
}

// UpdateQueueEntryStatus transitions status and bumps state_changed_at.
func (s *Store) UpdateQueueEntryStatus(ctx context.Context, id int64, status QueueStatus, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_entries SET status = ?, state_changed_at = ? WHERE id = ?
	`, string(status), formatTime(now), id)
	if err != nil {
		return wrapDBErrorf(err, "update queue entry %d status", id)
	}
	return checkRowsAffected(res, "queue entry %d", id)
}

// ReleaseQueueEntry returns an entry to pending/unclaimed, recording the
// releasing agent as prev_agent (spec §4.6 release()).
func (s *Store) ReleaseQueueEntry(ctx context.Context, id int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET status = ?, claim_state = ?, prev_agent = claim_agent, claim_agent = '',
		    claimed_at = NULL, expires_at = NULL, state_changed_at = ?
		WHERE id = ?
	`, string(QueuePending), string(ClaimUnclaimed), formatTime(now), id)
	if err != nil {
		return wrapDBErrorf(err, "release queue entry %d", id)
	}
	return checkRowsAffected(res, "queue entry %d", id)
}

// ExtendQueueEntryLease pushes expires_at forward. Fails with
// zjjerr.ErrNotLockHolder if agentID does not match the current holder, or
// if the existing lease has already expired (spec §4.6: extend fails if the
// lease already expired or the caller isn't the owner) — an expired claim
// not yet swept by reclaim_stale must not be silently renewed.
func (s *Store) ExtendQueueEntryLease(ctx context.Context, id int64, agentID string, lease time.Duration, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET expires_at = ?
		WHERE id = ? AND claim_agent = ? AND claim_state = ? AND expires_at >= ?
	`, formatTime(now.Add(lease)), id, agentID, string(ClaimHeld), formatTime(now))
	if err != nil {
		return wrapDBErrorf(err, "extend queue entry %d lease", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("extend lease: rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("queue entry %d: %w", id, zjjerr.ErrNotLockHolder)
	}
	return nil
}

// CompleteQueueEntry marks an entry Completed.
func (s *Store) CompleteQueueEntry(ctx context.Context, id int64, now time.Time) error {
	return s.UpdateQueueEntryStatus(ctx, id, QueueCompleted, now)
}

// FailQueueEntry marks an entry Failed and records the error detail.
func (s *Store) FailQueueEntry(ctx context.Context, id int64, lastError string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_entries SET status = ?, last_error = ?, state_changed_at = ? WHERE id = ?
	`, string(QueueFailed), lastError, formatTime(now), id)
	if err != nil {
		return wrapDBErrorf(err, "fail queue entry %d", id)
	}
	return checkRowsAffected(res, "queue entry %d", id)
}

// CancelQueueEntry marks an entry Cancelled from any non-terminal state.
func (s *Store) CancelQueueEntry(ctx context.Context, id int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_entries SET status = ?, state_changed_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed', 'cancelled')
	`, string(QueueCancelled), formatTime(now), id)
	if err != nil {
		return wrapDBErrorf(err, "cancel queue entry %d", id)
	}
	return checkRowsAffected(res, "queue entry %d", id)
}

// IncrementRetryCount bumps retry_count by one, used on Transient failure
// before releasing an entry back to Pending (spec §4.8 retry classification).
func (s *Store) IncrementRetryCount(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE queue_entries SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return wrapDBErrorf(err, "increment retry count for queue entry %d", id)
	}
	return checkRowsAffected(res, "queue entry %d", id)
}

// ReclaimStaleQueueEntries returns to pending/unclaimed every claim whose
// expires_at is before cutoff, recording expired_at as now, and reports how
// many rows it touched (spec §4.6 reclaim_stale(), invoked opportunistically
// by the Recovery Engine sweep). cutoff is typically now minus a grace
// threshold; callers wanting "expired as of now" pass cutoff == now.
func (s *Store) ReclaimStaleQueueEntries(ctx context.Context, now, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET status = ?, claim_state = ?, prev_agent = claim_agent, claim_agent = '',
		    expired_at = ?, state_changed_at = ?
		WHERE claim_state = ? AND expires_at IS NOT NULL AND expires_at < ?
	`, string(QueuePending), string(ClaimUnclaimed), formatTime(now), formatTime(now),
		string(ClaimHeld), formatTime(cutoff))
	if err != nil {
		return 0, wrapDBError("reclaim stale queue entries", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("reclaim stale: rows affected", err)
	}
	return int(n), nil
}

// ListQueueEntries returns entries ordered by claim priority (priority,
// submitted_at, id), optionally filtered by status.
func (s *Store) ListQueueEntries(ctx context.Context, status *QueueStatus) ([]QueueEntryRecord, error) {
	query := `
		SELECT id, workspace, bead_id, priority, status, claim_state, claim_agent,
		       claimed_at, expires_at, prev_agent, expired_at, submitted_at,
		       state_changed_at, started_at, dedupe_key, retry_count, parent_workspace, last_error
		FROM queue_entries
	`
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY priority ASC, submitted_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list queue entries", err)
	}
	defer func() { _ = rows.Close() }()

	var out []QueueEntryRecord
	for rows.Next() {
		rec, err := scanQueueEntryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, wrapDBError("iterate queue entries", rows.Err())
}

// QueueStats summarizes queue depth for the stats() operation (spec §4.6).
type QueueStats struct {
	Pending   int
	Claimed   int
	Active    int // rebasing + gating + merging
	Completed int
	Failed    int
	Cancelled int
}

// QueueEntryStats computes QueueStats with a single grouped aggregate query.
func (s *Store) QueueEntryStats(ctx context.Context) (QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_entries GROUP BY status`)
	if err != nil {
		return QueueStats{}, wrapDBError("queue stats", err)
	}
	defer func() { _ = rows.Close() }()

	var stats QueueStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return QueueStats{}, wrapDBError("scan queue stats row", err)
		}
		switch QueueStatus(status) {
		case QueuePending:
			stats.Pending = count
		case QueueClaimed:
			stats.Claimed = count
		case QueueRebasing, QueueGating, QueueMerging:
			stats.Active += count
		case QueueCompleted:
			stats.Completed = count
		case QueueFailed:
			stats.Failed = count
		case QueueCancelled:
			stats.Cancelled = count
		}
	}
	return stats, wrapDBError("iterate queue stats", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueEntry(row *sql.Row) (*QueueEntryRecord, error) {
	return scanQueueEntryScanner(row)
}

func scanQueueEntryRows(rows *sql.Rows) (*QueueEntryRecord, error) {
	return scanQueueEntryScanner(rows)
}

func scanQueueEntryScanner(sc rowScanner) (*QueueEntryRecord, error) {
	var rec QueueEntryRecord
	var status, claimState string
	var claimedAt, expiresAt, expiredAt, startedAt sql.NullString
	var submittedAt, stateChangedAt string

	err := sc.Scan(&rec.ID, &rec.Workspace, &rec.BeadID, &rec.Priority, &status, &claimState,
		&rec.ClaimAgent, &claimedAt, &expiresAt, &rec.PrevAgent, &expiredAt, &submittedAt,
		&stateChangedAt, &startedAt, &rec.DedupeKey, &rec.RetryCount, &rec.ParentWorkspace, &rec.LastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("queue entry: %w", zjjerr.ErrNotFound)
		}
		return nil, wrapDBError("scan queue entry", err)
	}

	rec.Status = QueueStatus(status)
	rec.ClaimState = ClaimState(claimState)

	if rec.ClaimedAt, err = parseNullTime(claimedAt); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return nil, err
	}
	if rec.ExpiredAt, err = parseNullTime(expiredAt); err != nil {
		return nil, err
	}
	if rec.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if rec.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return nil, err
	}
	if rec.StateChangedAt, err = parseTime(stateChangedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
