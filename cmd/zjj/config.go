package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect or scaffold zjj configuration"}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:  "show",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return emitAction(current.out, "config.show", func() (any, error) {
				return configPayload(), nil
			})
		},
	}
}

// configDoc mirrors config.Config's on-disk layer shape (spec §6's table),
// the way the teacher writes its own config scaffolding via BurntSushi/toml.
type configDoc struct {
	Recovery struct {
		Policy       string `toml:"policy"`
		LogRecovered bool   `toml:"log_recovered"`
	} `toml:"recovery"`
	Queue struct {
		LeaseSeconds int `toml:"lease_seconds"`
		MaxRetries   int `toml:"max_retries"`
	} `toml:"queue"`
	Train struct {
		Gates []string `toml:"gates"`
	} `toml:"train"`
	Workspaces struct {
		Root string `toml:"root"`
	} `toml:"workspaces"`
	Log struct {
		Format string `toml:"format"`
	} `toml:"log"`
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:  "init",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return emitAction(current.out, "config.init", func() (any, error) {
				path := filepath.Join(filepath.Dir(filepath.Dir(current.cfg.StorePath)), "config.toml")
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return nil, err
				}

				var doc configDoc
				doc.Recovery.Policy = string(current.cfg.RecoveryPolicy)
				doc.Recovery.LogRecovered = current.cfg.RecoveryLogEnabled
				doc.Queue.LeaseSeconds = current.cfg.QueueLeaseSeconds
				doc.Queue.MaxRetries = current.cfg.QueueMaxRetries
				doc.Train.Gates = current.cfg.TrainGates
				doc.Workspaces.Root = current.cfg.WorkspacesRoot
				doc.Log.Format = string(current.cfg.LogFormat)

				f, err := os.Create(path)
				if err != nil {
					return nil, err
				}
				defer func() { _ = f.Close() }()

				if err := toml.NewEncoder(f).Encode(doc); err != nil {
					return nil, err
				}
				return map[string]string{"path": path}, nil
			})
		},
	}
}

func configPayload() map[string]any {
	cfg := current.cfg
	return map[string]any{
		"recovery_policy":      string(cfg.RecoveryPolicy),
		"recovery_log_enabled": cfg.RecoveryLogEnabled,
		"queue_lease_seconds":  cfg.QueueLeaseSeconds,
		"queue_max_retries":    cfg.QueueMaxRetries,
		"train_gates":          cfg.TrainGates,
		"workspaces_root":      cfg.WorkspacesRoot,
		"log_format":           string(cfg.LogFormat),
		"store_path":           cfg.StorePath,
	}
}
