package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/zjj-vcs/zjj/internal/ids"
	"github.com/zjj-vcs/zjj/internal/queue"
	"github.com/zjj-vcs/zjj/internal/store"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "queue", Short: "Enqueue, claim, and inspect queue entries"}
	cmd.AddCommand(newQueueEnqueueCmd())
	cmd.AddCommand(newQueueClaimCmd())
	cmd.AddCommand(newQueueReleaseCmd())
	cmd.AddCommand(newQueueExtendCmd())
	cmd.AddCommand(newQueueCompleteCmd())
	cmd.AddCommand(newQueueCancelCmd())
	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueueGetCmd())
	cmd.AddCommand(newQueueStatsCmd())
	return cmd
}

func newQueueEnqueueCmd() *cobra.Command {
	var beadID, dedupeKey, parentWorkspace string
	var priority int

	cmd := &cobra.Command{
		Use:  "enqueue <workspace>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := ids.ParseWorkspaceName(args[0])
			if err != nil {
				return err
			}
			pr, err := ids.ParsePriority(priority)
			if err != nil {
				return err
			}
			if dedupeKey == "" {
				dedupeKey = ws.String()
			}
			return emitAction(current.out, "queue.enqueue", func() (any, error) {
				rec, err := current.queue.Enqueue(cmd.Context(), queue.EnqueueInput{
					Workspace: ws, BeadID: beadID, Priority: pr, DedupeKey: dedupeKey, ParentWorkspace: parentWorkspace,
				}, time.Now())
				if err != nil {
					return nil, err
				}
				return queueEntryPayload(rec), nil
			})
		},
	}
	cmd.Flags().StringVar(&beadID, "bead", "", "linked bead id")
	cmd.Flags().StringVar(&dedupeKey, "dedupe-key", "", "dedup key, defaults to workspace name if empty")
	cmd.Flags().StringVar(&parentWorkspace, "parent-workspace", "", "stack parent workspace, if any")
	cmd.Flags().IntVar(&priority, "priority", ids.DefaultPriority.Int(), "priority, 0 (most urgent) to 1000")
	return cmd
}

func newQueueClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:  "claim",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return emitAction(current.out, "queue.claim_next", func() (any, error) {
				if _, err := current.recov.Sweep(cmd.Context(), time.Now()); err != nil {
					return nil, err
				}
				rec, err := current.queue.ClaimNext(cmd.Context(), current.agent, current.lease, time.Now())
				if err != nil {
					return nil, err
				}
				if rec == nil {
					return map[string]string{"claimed": "none"}, nil
				}
				return queueEntryPayload(rec), nil
			})
		},
	}
}

func newQueueReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:  "release <id>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ids.ParseQueueEntryId(args[0])
			if err != nil {
				return err
			}
			return emitAction(current.out, "queue.release", func() (any, error) {
				if err := current.queue.Release(cmd.Context(), id, current.agent, time.Now()); err != nil {
					return nil, err
				}
				return map[string]string{"id": id.String()}, nil
			})
		},
	}
}

func newQueueExtendCmd() *cobra.Command {
	var additionalSeconds int

	cmd := &cobra.Command{
		Use:  "extend <id>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ids.ParseQueueEntryId(args[0])
			if err != nil {
				return err
			}
			additional := current.lease
			if additionalSeconds > 0 {
				additional, err = ids.ParseLeaseSeconds(additionalSeconds)
				if err != nil {
					return err
				}
			}
			return emitAction(current.out, "queue.extend", func() (any, error) {
				if err := current.queue.Extend(cmd.Context(), id, current.agent, additional, time.Now()); err != nil {
					return nil, err
				}
				return map[string]string{"id": id.String()}, nil
			})
		},
	}
	cmd.Flags().IntVar(&additionalSeconds, "seconds", 0, "additional lease seconds (default: configured lease)")
	return cmd
}

func newQueueCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:  "complete <id>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ids.ParseQueueEntryId(args[0])
			if err != nil {
				return err
			}
			return emitAction(current.out, "queue.complete", func() (any, error) {
				if err := current.queue.Complete(cmd.Context(), id, current.agent, time.Now()); err != nil {
					return nil, err
				}
				return map[string]string{"id": id.String()}, nil
			})
		},
	}
}

func newQueueCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:  "cancel <id>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ids.ParseQueueEntryId(args[0])
			if err != nil {
				return err
			}
			return emitAction(current.out, "queue.cancel", func() (any, error) {
				if err := current.queue.Cancel(cmd.Context(), id, time.Now()); err != nil {
					return nil, err
				}
				return map[string]string{"id": id.String()}, nil
			})
		},
	}
}

func newQueueListCmd() *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:  "list",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status *queue.Status
			if statusFilter != "" {
				s := queue.Status(statusFilter)
				status = &s
			}
			return emitAction(current.out, "queue.list", func() (any, error) {
				recs, err := current.queue.List(cmd.Context(), status)
				if err != nil {
					return nil, err
				}
				out := make([]any, len(recs))
				for i := range recs {
					out[i] = queueEntryPayload(&recs[i])
				}
				return out, nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "filter by queue entry status")
	return cmd
}

func newQueueGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:  "get <id>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ids.ParseQueueEntryId(args[0])
			if err != nil {
				return err
			}
			return emitAction(current.out, "queue.get", func() (any, error) {
				rec, err := current.queue.Get(cmd.Context(), id)
				if err != nil {
					return nil, err
				}
				return queueEntryPayload(rec), nil
			})
		},
	}
}

func newQueueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:  "stats",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return emitAction(current.out, "queue.stats", func() (any, error) {
				return current.queue.Stats(cmd.Context())
			})
		},
	}
}

func queueEntryPayload(rec *store.QueueEntryRecord) map[string]any {
	return map[string]any{
		"id":         rec.ID,
		"workspace":  rec.Workspace,
		"status":     string(rec.Status),
		"priority":   rec.Priority,
		"claim_state": string(rec.ClaimState),
		"claim_agent": rec.ClaimAgent,
		"retry_count": rec.RetryCount,
	}
}
