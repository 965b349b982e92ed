package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var fix, watch bool

	cmd := &cobra.Command{
		Use:  "doctor",
		Args: cobra.NoArgs,
		Short: "Report (and optionally repair) recoverable anomalies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return watchDoctor(cmd, fix)
			}
			return emitAction(current.out, "doctor.check", func() (any, error) {
				return runDoctorPass(cmd, fix)
			})
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "mutate: reap stale locks, reclaim stale claims, reconcile Creating sessions")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-run the check every time the store file changes")
	return cmd
}

func runDoctorPass(cmd *cobra.Command, fix bool) (any, error) {
	now := time.Now()
	ctx := cmd.Context()

	var report any
	if fix {
		r, err := current.recov.Sweep(ctx, now)
		if err != nil {
			return nil, err
		}
		reconciled, err := current.recov.ReconcileCreatingSessions(ctx, 5*time.Minute, now, hasWorkingCopy)
		if err != nil {
			return nil, err
		}
		report = map[string]any{
			"locks_reaped":       r.LocksReaped,
			"entries_reclaimed":  r.EntriesReclaimed,
			"sessions_reconciled": reconciled,
			"mutated":            true,
		}
	} else {
		r, err := current.recov.GetStats(ctx, now)
		if err != nil {
			return nil, err
		}
		report = map[string]any{
			"locks_reaped":      r.LocksReaped,
			"entries_reclaimed": r.EntriesReclaimed,
			"mutated":           false,
		}
	}
	return report, nil
}

func hasWorkingCopy(name, path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// watchDoctor re-runs the check whenever the store file changes, for an
// operator who wants a live anomaly feed instead of polling manually
// (spec §6 `doctor [--fix] [--watch]`).
func watchDoctor(cmd *cobra.Command, fix bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(current.store.Path()); err != nil {
		return fmt.Errorf("watch store file: %w", err)
	}

	if err := emitAction(current.out, "doctor.check", func() (any, error) {
		return runDoctorPass(cmd, fix)
	}); err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := emitAction(current.out, "doctor.check", func() (any, error) {
				return runDoctorPass(cmd, fix)
			}); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	}
}
