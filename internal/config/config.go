// Package config implements zjj's layered configuration (spec §6):
// CLI flag > env var > project config (./.zjj/config.toml) > global config
// ($HOME/.config/zjj/config.toml) > compiled-in defaults.
//
// Loading is a single viper.Viper instance per process, following the
// precedence the teacher's cmd/bd root command establishes in its init():
// bind persistent flags first, then env, then config files, leaving viper's
// own precedence rules (flag > env > config > default) to do the rest.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// RecoveryPolicy is the three-valued rule governing response to an unreadable
// or malformed state.db (spec §4.1, §4.9).
type RecoveryPolicy string

const (
	RecoveryPolicySilent    RecoveryPolicy = "silent"
	RecoveryPolicyWarn      RecoveryPolicy = "warn"
	RecoveryPolicyFailFast  RecoveryPolicy = "fail-fast"
	defaultRecoveryPolicy                  = RecoveryPolicyWarn
	defaultLeaseSeconds                    = 600
	defaultMaxRetries                      = 3
	defaultLogFormat                       = "jsonl"
	defaultDirName                         = ".zjj"
)

// LogFormat selects how the Output Stream renders records (spec §4.10, §6).
type LogFormat string

const (
	LogFormatJSONL LogFormat = "jsonl"
	LogFormatPlain LogFormat = "plain"
)

// Config is the fully-resolved, validated configuration for one process run.
type Config struct {
	RecoveryPolicy     RecoveryPolicy
	RecoveryLogEnabled bool
	QueueLeaseSeconds  int
	QueueMaxRetries    int
	TrainGates         []string
	WorkspacesRoot     string
	LogFormat          LogFormat
	StorePath          string
	DefaultAgentID     string
}

// Loader builds a Config from the layered sources. It owns one viper.Viper
// instance so repeated Load calls (e.g. across subcommands in the same
// process) see consistent precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader constructs a Loader with defaults registered and env bound under
// the ZJJ_ prefix, mirroring the teacher's config.Initialize-in-init()
// pattern but without the global package-level singleton: each cmd/zjj
// invocation constructs its own Loader so tests never leak state across
// cases.
func NewLoader(projectDir string) (*Loader, error) {
	v := viper.New()

	v.SetDefault("recovery.policy", string(defaultRecoveryPolicy))
	v.SetDefault("recovery.log_recovered", true)
	v.SetDefault("queue.lease_seconds", defaultLeaseSeconds)
	v.SetDefault("queue.max_retries", defaultMaxRetries)
	v.SetDefault("train.gates", []string{})
	v.SetDefault("workspaces.root", filepath.Join(projectDir, defaultDirName, "workspaces"))
	v.SetDefault("log.format", defaultLogFormat)
	v.SetDefault("store.path", filepath.Join(projectDir, defaultDirName, "state.db"))
	v.SetDefault("default_agent_id", "")

	v.SetEnvPrefix("ZJJ")
	v.AutomaticEnv()
	_ = v.BindEnv("recovery.policy", "ZJJ_RECOVERY_POLICY")
	_ = v.BindEnv("recovery.log_recovered", "ZJJ_RECOVERY_LOG")
	_ = v.BindEnv("store.path", "ZJJ_STORE_PATH")
	_ = v.BindEnv("default_agent_id", "ZJJ_DEFAULT_AGENT_ID")

	l := &Loader{v: v}

	if err := l.mergeTOML(globalConfigPath()); err != nil {
		return nil, err
	}
	if err := l.mergeTOML(filepath.Join(projectDir, defaultDirName, "config.toml")); err != nil {
		return nil, err
	}

	return l, nil
}

// mergeTOML layers one config.toml on top of whatever is already loaded.
// A missing file is not an error: project config and global config are both
// optional (spec §6 lists them as layers, not requirements).
func (l *Loader) mergeTOML(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}

	layer := viper.New()
	layer.SetConfigFile(path)
	layer.SetConfigType("toml")
	if err := layer.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return l.v.MergeConfigMap(layer.AllSettings())
}

// BindFlags lets the CLI boundary register its persistent flags as the
// highest-precedence layer, exactly as the teacher's rootCmd does in init().
func (l *Loader) BindFlags(flags FlagSource) error {
	return flags.BindTo(l.v)
}

// FlagSource is implemented by a *pflag.FlagSet (kept as an interface here
// so internal/config has no cobra/pflag import, matching §1's layering:
// config is ambient stack, CLI wiring lives in cmd/zjj).
type FlagSource interface {
	BindTo(v *viper.Viper) error
}

// Load resolves and validates the final Config.
func (l *Loader) Load() (Config, error) {
	policy := RecoveryPolicy(l.v.GetString("recovery.policy"))
	switch policy {
	case RecoveryPolicySilent, RecoveryPolicyWarn, RecoveryPolicyFailFast:
	default:
		return Config{}, fmt.Errorf("recovery.policy %q: invalid, must be one of silent|warn|fail-fast", policy)
	}

	format := LogFormat(l.v.GetString("log.format"))
	switch format {
	case LogFormatJSONL, LogFormatPlain:
	default:
		return Config{}, fmt.Errorf("log.format %q: invalid, must be one of jsonl|plain", format)
	}

	lease := l.v.GetInt("queue.lease_seconds")
	if lease < 1 || lease > 86400 {
		return Config{}, fmt.Errorf("queue.lease_seconds %d: must be between 1 and 86400", lease)
	}

	maxRetries := l.v.GetInt("queue.max_retries")
	if maxRetries < 0 {
		return Config{}, fmt.Errorf("queue.max_retries %d: must be >= 0", maxRetries)
	}

	root := l.v.GetString("workspaces.root")
	if !filepath.IsAbs(root) {
		return Config{}, fmt.Errorf("workspaces.root %q: must be an absolute path", root)
	}

	return Config{
		RecoveryPolicy:     policy,
		RecoveryLogEnabled: l.v.GetBool("recovery.log_recovered"),
		QueueLeaseSeconds:  lease,
		QueueMaxRetries:    maxRetries,
		TrainGates:         l.v.GetStringSlice("train.gates"),
		WorkspacesRoot:     root,
		LogFormat:          format,
		StorePath:          l.v.GetString("store.path"),
		DefaultAgentID:     l.v.GetString("default_agent_id"),
	}, nil
}

func globalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "zjj", "config.toml")
}
