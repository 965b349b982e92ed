package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zjj-vcs/zjj/internal/events"
	"github.com/zjj-vcs/zjj/internal/ids"
	"github.com/zjj-vcs/zjj/internal/lockfile"
	"github.com/zjj-vcs/zjj/internal/store"
	"github.com/zjj-vcs/zjj/internal/workspace"
	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// Manager orchestrates Store + Workspace Driver so that create and remove
// are each atomic from the caller's point of view (spec §4.5), serializing
// per-name operations with an advisory WorkspaceLock the way the teacher's
// lockfile package serializes daemon/CLI access to shared files.
type Manager struct {
	Store      *store.Store
	Driver     workspace.Driver
	Bus        *events.Bus
	LocksDir   string
	Workspaces string // parent directory for new working copies
}

// CreateInput is the caller-supplied subset of a new session.
type CreateInput struct {
	Name    ids.SessionName
	Parent  *ids.SessionName
	AgentID ids.AgentId
	BeadID  string
}

// Create runs the Session Manager's atomic create sequence (spec §4.5):
// insert Creating row, invoke the driver, promote to Ready, emit
// SessionCreated. A driver failure rolls the row back entirely rather than
// leaving a dangling Creating row for the Recovery Engine to find — the
// Recovery Engine's own reclassification (spec §4.9) exists for the case
// where the *process* dies mid-sequence, not for an ordinary driver error
// this call can observe directly.
func (m *Manager) Create(ctx context.Context, in CreateInput, now time.Time) (*store.SessionRecord, error) {
	lock, err := lockfile.Acquire(m.LocksDir, in.Name.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	if in.Parent != nil {
		parentRec, err := m.Store.GetSession(ctx, in.Parent.String())
		if err != nil {
			return nil, fmt.Errorf("parent session %s: %w", in.Parent.String(), err)
		}
		if parentRec.Status == Completed || parentRec.Status == Failed {
			return nil, fmt.Errorf("parent session %s is terminal: %w", in.Parent.String(), zjjerr.ErrInvalidTransition)
		}
	}

	workspacePath := in.Name.String()
	if m.Workspaces != "" {
		workspacePath = m.Workspaces + "/" + in.Name.String()
	}

	parentState := Root()
	parentName := ""
	if in.Parent != nil {
		parentState = ChildOf(in.Parent.String())
		parentName = in.Parent.String()
	}

	rec := store.SessionRecord{
		Name:            in.Name.String(),
		WorkspacePath:   workspacePath,
		Status:          Creating,
		BranchStateKind: Detached().Kind,
		ParentStateKind: parentState.Kind,
		ParentName:      parentName,
		AgentID:         in.AgentID.String(),
		BeadID:          in.BeadID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := m.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return m.Store.InsertSessionTx(ctx, tx, rec)
	}); err != nil {
		return nil, err
	}

	parentArg := ""
	if in.Parent != nil {
		parentArg = in.Parent.String()
	}
	if _, err := m.Driver.Create(ctx, in.Name.String(), parentArg); err != nil {
		// compensate: the row never leaves Creating on its own if we can't
		// remove it cleanly, but we try, since a dangling Creating row with
		// no working copy is exactly what the Recovery Engine's
		// IncompleteCreate detection exists to clean up if this fails too.
		_ = m.Store.WithTx(ctx, func(tx *sql.Tx) error {
			return m.Store.DeleteSessionTx(ctx, tx, in.Name.String())
		})
		return nil, fmt.Errorf("create workspace %s: %w", in.Name.String(), zjjerr.ErrWorkspaceCreateFailed)
	}

	if err := m.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return m.Store.UpdateSessionStatusTx(ctx, tx, in.Name.String(), Ready, now)
	}); err != nil {
		return nil, err
	}

	if m.Bus != nil {
		ev, evErr := events.NewWithPayload(events.SessionCreated, in.Name.String(), now, rec)
		if evErr == nil {
			m.Bus.Publish(ctx, ev)
		}
	}

	return m.Store.GetSession(ctx, in.Name.String())
}

// Remove runs the Session Manager's idempotent remove sequence (spec
// §4.5): reject if non-terminal children exist and !force; transition to a
// terminal state; forget + remove_dir (both idempotent); delete the row;
// emit WorkspaceRemoved. Re-running Remove against an already-removed name
// returns NotFound, matching Property 10.
func (m *Manager) Remove(ctx context.Context, name ids.SessionName, force bool, now time.Time) error {
	lock, err := lockfile.Acquire(m.LocksDir, name.String())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	rec, err := m.Store.GetSession(ctx, name.String())
	if err != nil {
		return err
	}

	if !force {
		count, err := m.Store.CountNonTerminalChildren(ctx, name.String())
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("session %s: %w", name.String(), zjjerr.ErrHasChildren)
		}
	}

	terminal := Completed
	if rec.Status == Failed {
		terminal = Failed
	}
	if rec.Status != Completed && rec.Status != Failed {
		if err := m.Store.WithTx(ctx, func(tx *sql.Tx) error {
			return m.Store.UpdateSessionStatusTx(ctx, tx, name.String(), terminal, now)
		}); err != nil {
			return err
		}
	}

	if err := m.Driver.Forget(ctx, name.String()); err != nil {
		return fmt.Errorf("forget workspace %s: %w", name.String(), zjjerr.ErrWorkspaceRemoveFailed)
	}
	if err := m.Driver.RemoveDir(ctx, rec.WorkspacePath); err != nil {
		return fmt.Errorf("remove workspace directory %s: %w", rec.WorkspacePath, zjjerr.ErrWorkspaceRemoveFailed)
	}

	if err := m.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return m.Store.DeleteSessionTx(ctx, tx, name.String())
	}); err != nil {
		return err
	}

	if m.Bus != nil {
		ev, evErr := events.NewWithPayload(events.WorkspaceRemoved, name.String(), now, map[string]string{"name": name.String()})
		if evErr == nil {
			m.Bus.Publish(ctx, ev)
		}
	}

	return nil
}

// Get fetches a session by name.
func (m *Manager) Get(ctx context.Context, name ids.SessionName) (*store.SessionRecord, error) {
	return m.Store.GetSession(ctx, name.String())
}

// List fetches sessions matching filter.
func (m *Manager) List(ctx context.Context, filter store.SessionFilter) ([]store.SessionRecord, error) {
	return m.Store.ListSessions(ctx, filter)
}
