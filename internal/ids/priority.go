package ids

import "fmt"

// Priority is a queue-entry priority: 0-1000, lower is more urgent.
// Immutable once a QueueEntry is submitted (spec §4.6, Open Questions).
type Priority struct {
	value int
}

// DefaultPriority is used when a caller does not specify one.
var DefaultPriority = Priority{value: 500}

// ParsePriority validates p is within [0, 1000].
func ParsePriority(p int) (Priority, error) {
	if p < 0 || p > 1000 {
		return Priority{}, fmt.Errorf("priority %d: %w: must be between 0 and 1000", p, ErrValidation)
	}
	return Priority{value: p}, nil
}

// Int returns the validated priority.
func (p Priority) Int() int { return p.value }

// Less reports whether p is strictly more urgent than other (lower value).
func (p Priority) Less(other Priority) bool { return p.value < other.value }
