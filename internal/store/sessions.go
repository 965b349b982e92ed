package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// SessionStatus mirrors the Session state machine's states (spec §4.3).
type SessionStatus string

const (
	SessionCreating  SessionStatus = "creating"
	SessionReady     SessionStatus = "ready"
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// BranchStateKind discriminates the Detached/OnBranch substate.
type BranchStateKind string

const (
	BranchDetached BranchStateKind = "detached"
	BranchOnBranch BranchStateKind = "on_branch"
)

// ParentStateKind discriminates the Root/ChildOf substate.
type ParentStateKind string

const (
	ParentRoot     ParentStateKind = "root"
	ParentChildOf  ParentStateKind = "child_of"
)

// SessionRecord is the persisted shape of a Session aggregate row.
type SessionRecord struct {
	Name             string
	WorkspacePath    string
	Status           SessionStatus
	BranchStateKind  BranchStateKind
	BranchStateName  string
	ParentStateKind  ParentStateKind
	ParentName       string
	AgentID          string
	BeadID           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	Status     *SessionStatus
	ParentName *string
}

// InsertSession inserts a new session row. Fails with zjjerr.ErrAlreadyExists
// if name is taken.
func (s *Store) InsertSession(ctx context.Context, rec SessionRecord) error {
	return s.insertSessionTx(ctx, s.db, rec)
}

// InsertSessionTx is the transactional variant used by the Session Manager's
// atomic create (spec §4.5 step 1). The Manager commits the insert on its
// own; the later update to Ready, on workspace-create success, runs in a
// separate transaction.
func (s *Store) InsertSessionTx(ctx context.Context, tx *sql.Tx, rec SessionRecord) error {
	return s.insertSessionTx(ctx, tx, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) insertSessionTx(ctx context.Context, e execer, rec SessionRecord) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO sessions (
			name, workspace_path, status, branch_state_kind, branch_state_name,
			parent_state_kind, parent_name, agent_id, bead_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Name, rec.WorkspacePath, string(rec.Status), string(rec.BranchStateKind), rec.BranchStateName,
		string(rec.ParentStateKind), rec.ParentName, rec.AgentID, rec.BeadID,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if isUniqueConstraint(err) {
		return fmt.Errorf("session %s: %w", rec.Name, zjjerr.ErrAlreadyExists)
	}
	return wrapDBErrorf(err, "insert session %s", rec.Name)
}

// UpdateSessionStatusTx transitions status (and bumps updated_at) within an
// existing transaction.
func (s *Store) UpdateSessionStatusTx(ctx context.Context, tx *sql.Tx, name string, status SessionStatus, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET status = ?, updated_at = ? WHERE name = ?`,
		string(status), formatTime(updatedAt), name)
	if err != nil {
		return wrapDBErrorf(err, "update session %s status", name)
	}
	return checkRowsAffected(res, "session %s", name)
}

// UpdateSessionBranchState updates the branch substate.
func (s *Store) UpdateSessionBranchState(ctx context.Context, name string, kind BranchStateKind, branchName string, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET branch_state_kind = ?, branch_state_name = ?, updated_at = ? WHERE name = ?
	`, string(kind), branchName, formatTime(updatedAt), name)
	if err != nil {
		return wrapDBErrorf(err, "update session %s branch state", name)
	}
	return checkRowsAffected(res, "session %s", name)
}

// UpdateSessionParentState updates the parent substate (adoption; root->child forbidden at the aggregate layer).
func (s *Store) UpdateSessionParentState(ctx context.Context, name string, kind ParentStateKind, parentName string, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET parent_state_kind = ?, parent_name = ?, updated_at = ? WHERE name = ?
	`, string(kind), parentName, formatTime(updatedAt), name)
	if err != nil {
		return wrapDBErrorf(err, "update session %s parent state", name)
	}
	return checkRowsAffected(res, "session %s", name)
}

// GetSession fetches one session by name.
func (s *Store) GetSession(ctx context.Context, name string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, workspace_path, status, branch_state_kind, branch_state_name,
		       parent_state_kind, parent_name, agent_id, bead_id, created_at, updated_at
		FROM sessions WHERE name = ?
	`, name)
	return scanSession(row)
}

// DeleteSessionTx removes a session row within an existing transaction.
func (s *Store) DeleteSessionTx(ctx context.Context, tx *sql.Tx, name string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE name = ?`, name)
	if err != nil {
		return wrapDBErrorf(err, "delete session %s", name)
	}
	return checkRowsAffected(res, "session %s", name)
}

// ListSessions returns sessions matching filter, ordered by name.
func (s *Store) ListSessions(ctx context.Context, filter SessionFilter) ([]SessionRecord, error) {
	query := `
		SELECT name, workspace_path, status, branch_state_kind, branch_state_name,
		       parent_state_kind, parent_name, agent_id, bead_id, created_at, updated_at
		FROM sessions
	`
	var clauses []string
	var args []any
	if filter.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.ParentName != nil {
		clauses = append(clauses, "parent_name = ?")
		args = append(args, *filter.ParentName)
	}
	if len(clauses) > 0 {
		query += " WHERE " + join(clauses, " AND ")
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list sessions", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, wrapDBError("iterate sessions", rows.Err())
}

// CountNonTerminalChildren returns the number of children of parentName
// whose status is not Completed or Failed (spec §3 invariant: a session
// with non-terminal children cannot be removed unless forced).
func (s *Store) CountNonTerminalChildren(ctx context.Context, parentName string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions
		WHERE parent_name = ? AND status NOT IN ('completed', 'failed')
	`, parentName).Scan(&count)
	return count, wrapDBErrorf(err, "count non-terminal children of %s", parentName)
}

// StackDepth computes the chain length from name up to a Root session,
// following parent_name pointers (spec §9: "compute stack_depth on read,
// do not store back-pointers").
func (s *Store) StackDepth(ctx context.Context, name string) (int, error) {
	depth := 0
	current := name
	for {
		var parentKind, parentName string
		err := s.db.QueryRowContext(ctx, `SELECT parent_state_kind, parent_name FROM sessions WHERE name = ?`, current).Scan(&parentKind, &parentName)
		if err != nil {
			return 0, wrapDBErrorf(err, "stack depth for %s", name)
		}
		if ParentStateKind(parentKind) == ParentRoot || parentName == "" {
			return depth, nil
		}
		depth++
		current = parentName
		if depth > 10_000 {
			// Defensive bound; cycles are prevented by construction (spec §9)
			// but a corrupted store should not spin forever.
			return depth, nil
		}
	}
}

func scanSession(row *sql.Row) (*SessionRecord, error) {
	var rec SessionRecord
	var createdAt, updatedAt string
	err := row.Scan(&rec.Name, &rec.WorkspacePath, &rec.Status, &rec.BranchStateKind, &rec.BranchStateName,
		&rec.ParentStateKind, &rec.ParentName, &rec.AgentID, &rec.BeadID, &createdAt, &updatedAt)
	if err != nil {
		return nil, wrapDBErrorf(err, "get session")
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanSessionRow(rows *sql.Rows) (*SessionRecord, error) {
	var rec SessionRecord
	var createdAt, updatedAt string
	err := rows.Scan(&rec.Name, &rec.WorkspacePath, &rec.Status, &rec.BranchStateKind, &rec.BranchStateName,
		&rec.ParentStateKind, &rec.ParentName, &rec.AgentID, &rec.BeadID, &createdAt, &updatedAt)
	if err != nil {
		return nil, wrapDBError("scan session row", err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
