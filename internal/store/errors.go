package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// wrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to zjjerr.ErrNotFound. This is the teacher's
// sqlite.wrapDBError convention, generalized beyond issue storage to every
// table this package owns.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, zjjerr.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func wrapDBErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return wrapDBError(fmt.Sprintf(format, args...), err)
}

// isNotFound reports whether err is or wraps zjjerr.ErrNotFound.
func isNotFound(err error) bool {
	return errors.Is(err, zjjerr.ErrNotFound)
}

// checkRowsAffected turns a zero-row UPDATE/DELETE into zjjerr.ErrNotFound,
// formatting the subject with format/args (e.g. "session %s", name).
func checkRowsAffected(res sql.Result, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), zjjerr.ErrNotFound)
	}
	return nil
}
