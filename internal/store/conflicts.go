package store

import (
	"context"
	"database/sql"
	"time"
)

// ConflictResolutionRecord is the persisted shape of a conflict_resolutions
// row: the Train Processor's memory of how a given conflict on a given
// queue entry was last resolved, so a repeat of the same conflict on retry
// doesn't re-prompt for a decision already made (spec §4.8).
type ConflictResolutionRecord struct {
	ID                  int64
	QueueEntryID        int64
	Decider             string
	ResolvedAt          time.Time
	ConflictType        string
	ResolutionStrategy  string
	Notes               string
}

// RecordConflictResolution inserts a new resolution entry.
func (s *Store) RecordConflictResolution(ctx context.Context, rec ConflictResolutionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conflict_resolutions (
			queue_entry_id, decider, resolved_at, conflict_type, resolution_strategy, notes
		) VALUES (?, ?, ?, ?, ?, ?)
	`, rec.QueueEntryID, rec.Decider, formatTime(rec.ResolvedAt), rec.ConflictType, rec.ResolutionStrategy, rec.Notes)
	return wrapDBErrorf(err, "record conflict resolution for queue entry %d", rec.QueueEntryID)
}

// FindConflictResolution looks up the most recent resolution recorded for
// (queueEntryID, conflictType), returning nil if none exists yet.
func (s *Store) FindConflictResolution(ctx context.Context, queueEntryID int64, conflictType string) (*ConflictResolutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, queue_entry_id, decider, resolved_at, conflict_type, resolution_strategy, notes
		FROM conflict_resolutions
		WHERE queue_entry_id = ? AND conflict_type = ?
		ORDER BY id DESC LIMIT 1
	`, queueEntryID, conflictType)

	var rec ConflictResolutionRecord
	var resolvedAt string
	err := row.Scan(&rec.ID, &rec.QueueEntryID, &rec.Decider, &resolvedAt, &rec.ConflictType, &rec.ResolutionStrategy, &rec.Notes)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, wrapDBErrorf(err, "find conflict resolution for queue entry %d", queueEntryID)
	}
	if rec.ResolvedAt, err = parseTime(resolvedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
