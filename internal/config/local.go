package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// LocalConfig is the subset of config.toml read directly, bypassing viper.
// This mirrors the teacher's LoadLocalConfig: a cheap, dependency-light read
// that does not go through the full Loader. No other package calls it: the
// CLI passes the recovery policy to internal/recovery from the Loader's
// Config.
type LocalConfig struct {
	Recovery struct {
		Policy        string `toml:"policy"`
		LogRecovered  *bool  `toml:"log_recovered"`
	} `toml:"recovery"`
}

// LoadLocalConfig reads and parses config.toml directly from path. Returns
// an empty LocalConfig (not an error) if the file doesn't exist, matching
// the teacher's "missing project config is not a failure" convention.
func LoadLocalConfig(path string) *LocalConfig {
	data, err := os.ReadFile(path) // #nosec G304 - path supplied by caller, project-local
	if err != nil {
		return &LocalConfig{}
	}

	var cfg LocalConfig
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return &LocalConfig{}
	}
	return &cfg
}

// PolicyOr returns the local config's recovery policy, or fallback if unset
// or invalid.
func (c *LocalConfig) PolicyOr(fallback RecoveryPolicy) RecoveryPolicy {
	switch RecoveryPolicy(c.Recovery.Policy) {
	case RecoveryPolicySilent, RecoveryPolicyWarn, RecoveryPolicyFailFast:
		return RecoveryPolicy(c.Recovery.Policy)
	default:
		return fallback
	}
}
