package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/zjj-vcs/zjj/internal/train"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "train", Short: "Run the train processor over the queue"}
	cmd.AddCommand(newTrainRunCmd())
	return cmd
}

func newTrainRunCmd() *cobra.Command {
	var trunk string
	var heartbeatSeconds int

	cmd := &cobra.Command{
		Use:  "run",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return emitAction(current.out, "train.run", func() (any, error) {
				now := time.Now()
				if _, err := current.recov.Sweep(cmd.Context(), now); err != nil {
					return nil, err
				}
				cfg := train.Config{
					Trunk:          trunk,
					GateNames:      current.cfg.TrainGates,
					MaxRetries:     current.cfg.QueueMaxRetries,
					Agent:          current.agent,
					LockLease:      current.lease,
					HeartbeatEvery: time.Duration(heartbeatSeconds) * time.Second,
				}
				summary, err := current.train.Run(cmd.Context(), cfg, now)
				if err != nil {
					return nil, err
				}
				return trainSummaryPayload(summary), nil
			})
		},
	}
	cmd.Flags().StringVar(&trunk, "trunk", "trunk", "bookmark the train rebases/merges onto")
	cmd.Flags().IntVar(&heartbeatSeconds, "heartbeat-seconds", 30, "processing-lock heartbeat interval")
	return cmd
}

func trainSummaryPayload(s train.RunSummary) map[string]any {
	return map[string]any{
		"landed":    s.Landed,
		"failed":    s.Failed,
		"cancelled": s.Cancelled,
	}
}
