package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zjj-vcs/zjj/internal/config"
	"github.com/zjj-vcs/zjj/internal/events"
	"github.com/zjj-vcs/zjj/internal/ids"
	"github.com/zjj-vcs/zjj/internal/lock"
	"github.com/zjj-vcs/zjj/internal/output"
	"github.com/zjj-vcs/zjj/internal/queue"
	"github.com/zjj-vcs/zjj/internal/recovery"
	"github.com/zjj-vcs/zjj/internal/session"
	"github.com/zjj-vcs/zjj/internal/store"
	"github.com/zjj-vcs/zjj/internal/train"
	"github.com/zjj-vcs/zjj/internal/workspace"
	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// app bundles the wired domain components one CLI invocation needs. It is
// built once in rootCmd's PersistentPreRunE and torn down in
// PersistentPostRunE, the way the teacher's root command wires a single
// storage.Storage for the process lifetime of one cobra invocation.
type app struct {
	cfg      config.Config
	store    *store.Store
	bus      *events.Bus
	out      *output.Stream
	sessions *session.Manager
	queue    *queue.Queue
	lock     *lock.Manager
	recov    *recovery.Engine
	train    *train.Processor
	agent    ids.AgentId
	lease    ids.LeaseSeconds
	recovered bool
}

func newApp(cmd cobraFlags, projectDir string) (*app, error) {
	loader, err := config.NewLoader(projectDir)
	if err != nil {
		return nil, err
	}
	if err := loader.BindFlags(cmd); err != nil {
		return nil, err
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if db := cmd.GetStringValue("db"); db != "" {
		cfg.StorePath = db
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := log.With().Str("component", "cli").Logger()

	bus := events.New()
	st, recovered, err := openStore(context.Background(), cfg, bus)
	if err != nil {
		return nil, err
	}
	bus.Subscribe(func(ctx context.Context, ev events.Event) {
		logger.Debug().Str("event", string(ev.Type)).Str("aggregate", ev.AggregateID).Msg("domain event")
	})

	format := output.FormatJSONL
	if cfg.LogFormat == config.LogFormatPlain || cmd.GetBoolValue("plain") {
		format = output.FormatPlain
	}
	out := output.New(outputWriter(), format)

	agentStr := cmd.GetStringValue("agent-id")
	if agentStr == "" {
		agentStr = cfg.DefaultAgentID
	}
	if agentStr == "" {
		agentStr = defaultAgentID()
	}
	agent, err := ids.ParseAgentId(agentStr)
	if err != nil {
		return nil, err
	}

	leaseSeconds := cmd.GetIntValue("lease-seconds")
	if leaseSeconds == 0 {
		leaseSeconds = cfg.QueueLeaseSeconds
	}
	lease, err := ids.ParseLeaseSeconds(leaseSeconds)
	if err != nil {
		return nil, err
	}

	driver := &workspace.JJDriver{Root: projectDir, WorkspacesRoot: cfg.WorkspacesRoot}

	sessions := &session.Manager{Store: st, Driver: driver, Bus: bus, LocksDir: cfg.WorkspacesRoot + "/.locks", Workspaces: cfg.WorkspacesRoot}
	q := &queue.Queue{Store: st, Bus: bus}
	lm := &lock.Manager{Store: st}
	reg := train.NewRegistry()
	for _, name := range cfg.TrainGates {
		fields := strings.Fields(name)
		if len(fields) == 0 {
			continue
		}
		reg.Register(train.ShellGate{GateName: name, Command: fields[0], Args: fields[1:], WorkspacesRoot: cfg.WorkspacesRoot})
	}
	tp := &train.Processor{Store: st, Queue: q, Lock: lm, Sessions: sessions, Driver: driver, Registry: reg, Bus: bus}
	rec := &recovery.Engine{Store: st, Bus: bus, Policy: cfg.RecoveryPolicy, LogEnabled: cfg.RecoveryLogEnabled}

	return &app{
		cfg: cfg, store: st, bus: bus, out: out,
		sessions: sessions, queue: q, lock: lm, recov: rec, train: tp,
		agent: agent, lease: lease, recovered: recovered,
	}, nil
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// recoveredExitCode reports 2 if this invocation silently/warningly
// recovered a corrupt store, else 0; root.go's PersistentPostRunE stores it
// in exitOverride (spec §6 exit code table).
func (a *app) recoveredExitCode() int {
	if a.recovered {
		return 2
	}
	return 0
}

// openStore opens the Store at cfg.StorePath, applying cfg.RecoveryPolicy
// only when Open reports corruption (spec §4.9, S5). recovered reports
// whether the recovery path actually ran, so the CLI boundary can map exit
// code 2 ("recovered from corruption") distinctly from a clean open.
func openStore(ctx context.Context, cfg config.Config, bus *events.Bus) (*store.Store, bool, error) {
	st, err := store.Open(ctx, cfg.StorePath)
	if err == nil {
		return st, false, nil
	}
	if !errors.Is(err, zjjerr.ErrStoreCorrupt) {
		return nil, false, err
	}
	if cfg.RecoveryPolicy == config.RecoveryPolicyFailFast {
		return nil, false, err
	}
	st, rerr := recovery.OpenWithPolicy(ctx, cfg.StorePath, cfg.RecoveryPolicy, cfg.RecoveryLogEnabled, bus, time.Now())
	if rerr != nil {
		return nil, false, rerr
	}
	return st, true, nil
}

func defaultAgentID() string {
	host, err := osHostname()
	if err != nil || host == "" {
		return "zjj-cli-" + newUUID()
	}
	return "zjj-cli-" + host
}
