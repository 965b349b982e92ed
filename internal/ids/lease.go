package ids

import (
	"fmt"
	"time"
)

// LeaseSeconds is a claim or processing-lock lease duration, 1-86400 seconds.
type LeaseSeconds struct {
	value int
}

// ParseLeaseSeconds validates seconds is within [1, 86400].
func ParseLeaseSeconds(seconds int) (LeaseSeconds, error) {
	if seconds < 1 || seconds > 86400 {
		return LeaseSeconds{}, fmt.Errorf("lease seconds %d: %w: must be between 1 and 86400", seconds, ErrValidation)
	}
	return LeaseSeconds{value: seconds}, nil
}

// Int returns the validated number of seconds.
func (l LeaseSeconds) Int() int { return l.value }

// Duration returns the lease as a time.Duration.
func (l LeaseSeconds) Duration() time.Duration { return time.Duration(l.value) * time.Second }
