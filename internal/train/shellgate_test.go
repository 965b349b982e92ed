package train

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellGatePassesOnZeroExit(t *testing.T) {
	dir := t.TempDir()
	g := ShellGate{GateName: "true-check", Command: "true", WorkspacesRoot: dir}

	ok, _, err := g.Check(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShellGateFailsOnNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	g := ShellGate{GateName: "false-check", Command: "false", WorkspacesRoot: dir}

	ok, _, err := g.Check(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShellGateErrorsOnMissingBinary(t *testing.T) {
	dir := t.TempDir()
	g := ShellGate{GateName: "missing", Command: "zjj-nonexistent-binary-xyz", WorkspacesRoot: dir}

	_, _, err := g.Check(context.Background(), "")
	assert.Error(t, err)
}

func TestRegistryOrderedRejectsUnknownGate(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ShellGate{GateName: "known", Command: "true"})

	_, err := reg.Ordered([]string{"known", "missing"})
	assert.Error(t, err)

	ordered, err := reg.Ordered([]string{"known"})
	require.NoError(t, err)
	assert.Len(t, ordered, 1)
}
