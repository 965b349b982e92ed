package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderDefaults(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLoader(dir)
	require.NoError(t, err)

	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, RecoveryPolicyWarn, cfg.RecoveryPolicy)
	assert.True(t, cfg.RecoveryLogEnabled)
	assert.Equal(t, 600, cfg.QueueLeaseSeconds)
	assert.Equal(t, 3, cfg.QueueMaxRetries)
	assert.Equal(t, LogFormatJSONL, cfg.LogFormat)
	assert.Equal(t, filepath.Join(dir, ".zjj", "workspaces"), cfg.WorkspacesRoot)
}

func TestLoaderProjectConfigOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".zjj"), 0o755))
	toml := `
[recovery]
policy = "fail-fast"

[queue]
lease_seconds = 120
max_retries = 5

[train]
gates = ["lint", "unit-tests"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".zjj", "config.toml"), []byte(toml), 0o644))

	l, err := NewLoader(dir)
	require.NoError(t, err)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, RecoveryPolicyFailFast, cfg.RecoveryPolicy)
	assert.Equal(t, 120, cfg.QueueLeaseSeconds)
	assert.Equal(t, 5, cfg.QueueMaxRetries)
	assert.Equal(t, []string{"lint", "unit-tests"}, cfg.TrainGates)
}

func TestLoaderRejectsInvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".zjj"), 0o755))
	toml := "[recovery]\npolicy = \"nonsense\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".zjj", "config.toml"), []byte(toml), 0o644))

	l, err := NewLoader(dir)
	require.NoError(t, err)
	_, err = l.Load()
	assert.Error(t, err)
}

func TestLoaderEnvOverridesProjectConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".zjj"), 0o755))
	toml := "[recovery]\npolicy = \"silent\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".zjj", "config.toml"), []byte(toml), 0o644))

	t.Setenv("ZJJ_RECOVERY_POLICY", "warn")

	l, err := NewLoader(dir)
	require.NoError(t, err)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, RecoveryPolicyWarn, cfg.RecoveryPolicy)
}

func TestLoadLocalConfigMissingFile(t *testing.T) {
	cfg := LoadLocalConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Equal(t, RecoveryPolicyWarn, cfg.PolicyOr(RecoveryPolicyWarn))
}

func TestLoadLocalConfigParsesPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[recovery]\npolicy = \"fail-fast\"\n"), 0o644))

	cfg := LoadLocalConfig(path)
	assert.Equal(t, RecoveryPolicyFailFast, cfg.PolicyOr(RecoveryPolicyWarn))
}
