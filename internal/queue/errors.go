package queue

import (
	"fmt"

	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

func errNotHolder(id int64, agent string) error {
	return fmt.Errorf("queue entry %d: agent %s is not the lease holder: %w", id, agent, zjjerr.ErrNotLockHolder)
}
