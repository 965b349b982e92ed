package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// current is the wired app for this process invocation, built once in
// rootCmd's PersistentPreRunE and closed in PersistentPostRunE -- a
// package-level handle the way the teacher's cmd/bd main.go keeps `store`
// and `actor` at package scope for the lifetime of one CLI run.
var current *app

// exitOverride lets a command force a non-default exit code on an
// otherwise-nil RunE return, used for "recovered from corruption" (2).
var exitOverride int

// cobraFlags adapts a *pflag.FlagSet to config.FlagSource and gives command
// bodies typed flag access without importing pflag themselves.
type cobraFlags struct {
	fs *pflag.FlagSet
}

func (c cobraFlags) BindTo(v *viper.Viper) error {
	return v.BindPFlags(c.fs)
}

func (c cobraFlags) GetStringValue(name string) string {
	s, _ := c.fs.GetString(name)
	return s
}

func (c cobraFlags) GetIntValue(name string) int {
	n, _ := c.fs.GetInt(name)
	return n
}

func (c cobraFlags) GetBoolValue(name string) bool {
	b, _ := c.fs.GetBool(name)
	return b
}

func newRootCmd() *cobra.Command {
	var projectDir string

	root := &cobra.Command{
		Use:           "zjj",
		Short:         "Merge-queue coordination for concurrent jj workspaces",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().Bool("json", true, "emit the JSONL output stream (spec default)")
	root.PersistentFlags().Bool("plain", false, "emit human-readable lines instead of JSONL")
	root.PersistentFlags().String("db", "", "override the state store path")
	root.PersistentFlags().String("agent-id", "", "identity used for claims and locks")
	root.PersistentFlags().Int("lease-seconds", 0, "override the default claim/lock lease")
	root.PersistentFlags().StringVar(&projectDir, "project-dir", "", "project root (default: current directory)")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		dir := projectDir
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			dir = wd
		}
		dir, err := filepath.Abs(dir)
		if err != nil {
			return err
		}

		a, err := newApp(cobraFlags{fs: cmd.Flags()}, dir)
		if err != nil {
			return err
		}
		current = a
		return nil
	}

	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if current == nil {
			return nil
		}
		// Recorded here, not in exitCodeFor, because exitOverride must be
		// set before Execute's caller inspects it but only reflects a run
		// that actually reached a store (an early PersistentPreRunE failure
		// never sets current at all, so recoveredExitCode stays the default).
		exitOverride = current.recoveredExitCode()
		return current.Close()
	}

	root.AddCommand(newSessionCmd())
	root.AddCommand(newQueueCmd())
	root.AddCommand(newTrainCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newConfigCmd())

	return root
}

func exitCodeFor(err error) int {
	if err == nil {
		if exitOverride != 0 {
			return exitOverride
		}
		return 0
	}
	return classifyExitCode(err)
}

