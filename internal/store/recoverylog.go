package store

import (
	"context"
	"time"
)

// RecoveryLogEntry is an append-only audit row written by the Recovery
// Engine when it acts and recovery logging is enabled (spec §4.9). A silent
// store recreate writes one even when logging is disabled, since nothing
// is printed to the operator in that case.
type RecoveryLogEntry struct {
	ID             int64
	Timestamp      time.Time
	Kind           string
	Details        string
	AppliedPolicy  string
}

// AppendRecoveryLog inserts one entry. The table is intentionally
// append-only: no update or delete method exists.
func (s *Store) AppendRecoveryLog(ctx context.Context, kind, details, appliedPolicy string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recovery_log (timestamp, kind, details, applied_policy) VALUES (?, ?, ?, ?)
	`, formatTime(now), kind, details, appliedPolicy)
	return wrapDBErrorf(err, "append recovery log entry %q", kind)
}

// RecentRecoveryLog returns the most recent entries, newest first, capped at limit.
func (s *Store) RecentRecoveryLog(ctx context.Context, limit int) ([]RecoveryLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, kind, details, applied_policy
		FROM recovery_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, wrapDBError("list recovery log", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RecoveryLogEntry
	for rows.Next() {
		var rec RecoveryLogEntry
		var ts string
		if err := rows.Scan(&rec.ID, &ts, &rec.Kind, &rec.Details, &rec.AppliedPolicy); err != nil {
			return nil, wrapDBError("scan recovery log row", err)
		}
		if rec.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, wrapDBError("iterate recovery log", rows.Err())
}

// RecoveryLogStats tallies entries by kind, backing get_recovery_stats() (spec §4.9).
func (s *Store) RecoveryLogStats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM recovery_log GROUP BY kind`)
	if err != nil {
		return nil, wrapDBError("recovery log stats", err)
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, wrapDBError("scan recovery log stats row", err)
		}
		stats[kind] = count
	}
	return stats, wrapDBError("iterate recovery log stats", rows.Err())
}
