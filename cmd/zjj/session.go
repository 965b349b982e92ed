package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/zjj-vcs/zjj/internal/ids"
	"github.com/zjj-vcs/zjj/internal/session"
	"github.com/zjj-vcs/zjj/internal/store"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Create, remove, and inspect sessions (working copies)"}
	cmd.AddCommand(newSessionCreateCmd())
	cmd.AddCommand(newSessionRemoveCmd())
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionShowCmd())
	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	var parentName, beadID string

	cmd := &cobra.Command{
		Use:  "create <name>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := ids.ParseSessionName(args[0])
			if err != nil {
				return err
			}
			var parent *ids.SessionName
			if parentName != "" {
				p, err := ids.ParseSessionName(parentName)
				if err != nil {
					return err
				}
				parent = &p
			}

			return emitAction(current.out, "session.create", func() (any, error) {
				rec, err := current.sessions.Create(cmd.Context(), session.CreateInput{
					Name: name, Parent: parent, AgentID: current.agent, BeadID: beadID,
				}, time.Now())
				if err != nil {
					return nil, err
				}
				return sessionPayload(rec), nil
			})
		},
	}
	cmd.Flags().StringVar(&parentName, "parent", "", "parent session name, if this is a stacked child")
	cmd.Flags().StringVar(&beadID, "bead", "", "linked bead id")
	return cmd
}

func newSessionRemoveCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:  "remove <name>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := ids.ParseSessionName(args[0])
			if err != nil {
				return err
			}
			return emitAction(current.out, "session.remove", func() (any, error) {
				if err := current.sessions.Remove(cmd.Context(), name, force, time.Now()); err != nil {
					return nil, err
				}
				return map[string]string{"name": name.String()}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "remove even if non-terminal children exist")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:  "list",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.SessionFilter{}
			if statusFilter != "" {
				filter.Status = (*store.SessionStatus)(&statusFilter)
			}
			return emitAction(current.out, "session.list", func() (any, error) {
				recs, err := current.sessions.List(cmd.Context(), filter)
				if err != nil {
					return nil, err
				}
				out := make([]any, len(recs))
				for i := range recs {
					out[i] = sessionPayload(&recs[i])
				}
				return out, nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "filter by session status")
	return cmd
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:  "show <name>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := ids.ParseSessionName(args[0])
			if err != nil {
				return err
			}
			return emitAction(current.out, "session.show", func() (any, error) {
				rec, err := current.sessions.Get(cmd.Context(), name)
				if err != nil {
					return nil, err
				}
				return sessionPayload(rec), nil
			})
		},
	}
}

func sessionPayload(rec *store.SessionRecord) map[string]any {
	return map[string]any{
		"name":        rec.Name,
		"status":      string(rec.Status),
		"branch":      string(rec.BranchStateKind),
		"parent_kind": string(rec.ParentStateKind),
		"parent_name": rec.ParentName,
		"agent_id":    rec.AgentID,
		"bead_id":     rec.BeadID,
	}
}
