package main

import (
	"time"

	"github.com/zjj-vcs/zjj/internal/output"
)

// emitAction wraps one CLI operation in the action(in_progress) ->
// [error] -> result sequencing spec §5/§7 require: exactly one action
// record, then either a result record on success or an error record
// followed by result(error) on failure.
func emitAction(out *output.Stream, name string, fn func() (any, error)) error {
	now := time.Now()
	if err := out.Action(name, now); err != nil {
		return err
	}

	detail, err := fn()
	now = time.Now()
	if err != nil {
		if emitErr := out.Error(err, now); emitErr != nil {
			return emitErr
		}
		if resErr := out.Result("error", now, nil); resErr != nil {
			return resErr
		}
		return err
	}

	return out.Result("ok", now, detail)
}
