package ids

import (
	"fmt"
	"regexp"
	"strings"
)

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// AgentId identifies a worker (human or AI agent) that may claim queue
// entries or hold the processing lock.
type AgentId struct {
	value string
}

// ParseAgentId validates s against the agent-id grammar: 1-128 characters
// of letters, digits, '.', '_', ':' or '-'.
func ParseAgentId(s string) (AgentId, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return AgentId{}, fmt.Errorf("agent id: %w: empty", ErrValidation)
	}
	if len(trimmed) > 128 {
		return AgentId{}, fmt.Errorf("agent id %q: %w: longer than 128 characters", trimmed, ErrValidation)
	}
	if !agentIDPattern.MatchString(trimmed) {
		return AgentId{}, fmt.Errorf("agent id %q: %w: must match [A-Za-z0-9._:-]+", trimmed, ErrValidation)
	}
	return AgentId{value: trimmed}, nil
}

// String returns the validated id.
func (a AgentId) String() string { return a.value }

// IsZero reports whether a is the zero value.
func (a AgentId) IsZero() bool { return a.value == "" }

// Equal reports whether two agent ids refer to the same agent.
func (a AgentId) Equal(other AgentId) bool { return a.value == other.value }
