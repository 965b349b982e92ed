package main

import (
	"errors"

	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// classifyExitCode maps a domain error to the spec §6 exit-code table:
// 0 success, 1 user error, 2 recovered corruption, 3 store failure. Only
// ErrStoreCorrupt, ErrStoreBusy and ErrSchemaVersionUnknown map to 3; every
// other error, including an I/O error that wraps none of these sentinels,
// maps to 1. Exit code 2 is decided by the caller (app.recovered) rather
// than here, since a successfully-recovered run returns a nil error.
func classifyExitCode(err error) int {
	switch {
	case errors.Is(err, zjjerr.ErrValidation),
		errors.Is(err, zjjerr.ErrNotFound),
		errors.Is(err, zjjerr.ErrAlreadyExists),
		errors.Is(err, zjjerr.ErrInvalidTransition),
		errors.Is(err, zjjerr.ErrNotLockHolder),
		errors.Is(err, zjjerr.ErrHasChildren):
		return 1
	case errors.Is(err, zjjerr.ErrStoreCorrupt),
		errors.Is(err, zjjerr.ErrStoreBusy),
		errors.Is(err, zjjerr.ErrSchemaVersionUnknown):
		return 3
	default:
		return 1
	}
}
