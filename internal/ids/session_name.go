package ids

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// ErrValidation re-exports zjjerr.ErrValidation for errors.Is checks against
// values returned by this package's ParseX constructors.
var ErrValidation = zjjerr.ErrValidation

var sessionNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// SessionName is a validated, unique-within-store session identifier.
// It doubles as a WorkspaceName: a session and its working copy share one name.
type SessionName struct {
	value string
}

// ParseSessionName validates s against the session-name grammar: 1-63
// characters, starting with a letter, containing only letters, digits,
// underscore and hyphen. Leading/trailing whitespace is trimmed before
// validation.
func ParseSessionName(s string) (SessionName, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return SessionName{}, fmt.Errorf("session name: %w: empty", ErrValidation)
	}
	if len(trimmed) > 63 {
		return SessionName{}, fmt.Errorf("session name %q: %w: longer than 63 characters", trimmed, ErrValidation)
	}
	if !sessionNamePattern.MatchString(trimmed) {
		return SessionName{}, fmt.Errorf("session name %q: %w: must start with a letter and contain only letters, digits, '_' or '-'", trimmed, ErrValidation)
	}
	if strings.ContainsAny(trimmed, "/\\") {
		return SessionName{}, fmt.Errorf("session name %q: %w: must not contain path separators", trimmed, ErrValidation)
	}
	return SessionName{value: trimmed}, nil
}

// String returns the validated name.
func (n SessionName) String() string { return n.value }

// IsZero reports whether n is the zero value (never produced by ParseSessionName).
func (n SessionName) IsZero() bool { return n.value == "" }

// WorkspaceName is an alias value object: a workspace is always named after
// its owning session, but the two are validated identically and kept as
// distinct types so a caller can't accidentally pass one where the other
// isn't yet meaningful (e.g. a workspace name referenced by a QueueEntry
// before its session row exists).
type WorkspaceName struct {
	value string
}

// ParseWorkspaceName validates s against the same grammar as ParseSessionName.
func ParseWorkspaceName(s string) (WorkspaceName, error) {
	n, err := ParseSessionName(s)
	if err != nil {
		return WorkspaceName{}, err
	}
	return WorkspaceName{value: n.value}, nil
}

// String returns the validated name.
func (n WorkspaceName) String() string { return n.value }

// IsZero reports whether n is the zero value.
func (n WorkspaceName) IsZero() bool { return n.value == "" }

// AsSessionName converts a WorkspaceName back to a SessionName. Safe because
// both share one grammar and namespace.
func (n WorkspaceName) AsSessionName() SessionName { return SessionName{value: n.value} }
