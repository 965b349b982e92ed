package recovery

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/zjj-vcs/zjj/internal/config"
	"github.com/zjj-vcs/zjj/internal/events"
	"github.com/zjj-vcs/zjj/internal/store"
	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// OpenWithPolicy opens the Store at path, applying the three-level
// corruption policy (spec §4.9, S5): `silent` recreates the file and logs;
// `warn` recreates, logs, and publishes a warning event; `fail-fast`
// surfaces zjjerr.ErrStoreCorrupt unchanged and does not touch the file.
func OpenWithPolicy(ctx context.Context, path string, policy config.RecoveryPolicy, logEnabled bool, bus *events.Bus, now time.Time) (*store.Store, error) {
	st, err := store.Open(ctx, path)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, zjjerr.ErrStoreCorrupt) {
		return nil, err
	}

	if policy == config.RecoveryPolicyFailFast {
		return nil, err
	}

	if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
		return nil, removeErr
	}
	st, openErr := store.Open(ctx, path)
	if openErr != nil {
		return nil, openErr
	}

	// Silent-policy recreation always writes to recovery.log regardless of
	// logEnabled (spec §4.9, S5): that knob controls the ordinary opt-in
	// audit trail, but a silent recreation with no other signal at all is
	// exactly the case logging must not be skippable for. warn policy
	// additionally honors logEnabled since it already surfaces a bus event.
	if logEnabled || policy == config.RecoveryPolicySilent {
		if logErr := st.AppendRecoveryLog(ctx, KindStoreCorruption, err.Error(), string(policy), now); logErr != nil {
			return st, logErr
		}
	}

	if policy == config.RecoveryPolicyWarn && bus != nil {
		ev, evErr := events.NewWithPayload(events.Type("RecoveryWarning"), path, now, map[string]string{"detail": err.Error()})
		if evErr == nil {
			bus.Publish(ctx, ev)
		}
	}

	return st, nil
}
