package recovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjj-vcs/zjj/internal/config"
	"github.com/zjj-vcs/zjj/internal/store"
	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return &Engine{Store: st, Policy: config.RecoveryPolicyWarn, LogEnabled: true}, st
}

func TestSweepReapsExpiredLock(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	_, err := st.AcquireProcessingLock(ctx, "agent", 1*time.Second, now)
	require.NoError(t, err)

	later := now.Add(2 * time.Second)
	report, err := eng.Sweep(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, report.LocksReaped)

	cur, err := st.GetProcessingLock(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestGetStatsDoesNotMutate(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	_, err := st.AcquireProcessingLock(ctx, "agent", 1*time.Second, now)
	require.NoError(t, err)

	later := now.Add(2 * time.Second)
	report, err := eng.GetStats(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, report.LocksReaped)

	cur, err := st.GetProcessingLock(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur, "GetStats must not mutate the lock it observed as stale")
}

func TestOpenWithPolicyFailFastReturnsStoreCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	require.NoError(t, os.WriteFile(path, []byte("not a sqlite file at all, just garbage bytes"), 0o644))

	_, err := OpenWithPolicy(context.Background(), path, config.RecoveryPolicyFailFast, true, nil, time.Now())
	assert.ErrorIs(t, err, zjjerr.ErrStoreCorrupt)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "not a sqlite file at all, just garbage bytes", string(data))
}

func TestOpenWithPolicyWarnRecreatesAndLogs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	st, err := OpenWithPolicy(context.Background(), path, config.RecoveryPolicyWarn, true, nil, time.Now())
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	entries, err := st.RecentRecoveryLog(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindStoreCorruption, entries[0].Kind)
}
