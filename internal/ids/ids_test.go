package ids

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSessionName(t *testing.T) {
	valid := []string{"a", "session1", "my-session_2", "A1", "feature-branch-work"}
	for _, v := range valid {
		n, err := ParseSessionName(v)
		require.NoError(t, err, v)
		assert.Equal(t, v, n.String())
	}

	invalid := []string{"", "1abc", "-abc", "has/slash", "has\\backslash", "has space"}
	for _, v := range invalid {
		_, err := ParseSessionName(v)
		assert.Error(t, err, v)
		assert.True(t, errors.Is(err, ErrValidation), v)
	}
}

func TestParseSessionNameTrimsWhitespace(t *testing.T) {
	n, err := ParseSessionName("  foo  ")
	require.NoError(t, err)
	assert.Equal(t, "foo", n.String())
}

func TestParseSessionNameTooLong(t *testing.T) {
	long := "a"
	for i := 0; i < 64; i++ {
		long += "b"
	}
	_, err := ParseSessionName(long)
	require.Error(t, err)
}

func TestSessionNameRoundTrip(t *testing.T) {
	// Property 8: parse(x).map(display) = Some(x) iff parse(x) is Ok.
	cases := []string{"valid-name", "invalid name", "", "Another_Valid1"}
	for _, c := range cases {
		n, err := ParseSessionName(c)
		if err == nil {
			assert.Equal(t, c, n.String())
		}
	}
}

func TestParseWorkspaceNameAndBack(t *testing.T) {
	w, err := ParseWorkspaceName("my-workspace")
	require.NoError(t, err)
	s := w.AsSessionName()
	assert.Equal(t, "my-workspace", s.String())
}

func TestParseAgentId(t *testing.T) {
	valid := []string{"agent-1", "claude:opus", "human.jdoe", "worker_7"}
	for _, v := range valid {
		a, err := ParseAgentId(v)
		require.NoError(t, err, v)
		assert.Equal(t, v, a.String())
	}

	_, err := ParseAgentId("")
	assert.Error(t, err)

	_, err = ParseAgentId("bad agent")
	assert.Error(t, err)
}

func TestAgentIdEqual(t *testing.T) {
	a, _ := ParseAgentId("agent-x")
	b, _ := ParseAgentId("agent-x")
	c, _ := ParseAgentId("agent-y")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestParseBeadId(t *testing.T) {
	valid := []string{"bd-abcd1234", "bd-0123456789abcdef01234567"}
	for _, v := range valid {
		b, err := ParseBeadId(v)
		require.NoError(t, err, v)
		assert.Equal(t, v, b.String())
	}

	invalid := []string{"abcd1234", "bd-short", "bd-" + string(make([]byte, 40))}
	for _, v := range invalid {
		_, err := ParseBeadId(v)
		assert.Error(t, err, v)
	}
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority(0)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Int())

	p, err = ParsePriority(1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, p.Int())

	_, err = ParsePriority(-1)
	assert.Error(t, err)

	_, err = ParsePriority(1001)
	assert.Error(t, err)
}

func TestPriorityLess(t *testing.T) {
	high, _ := ParsePriority(1)
	low, _ := ParsePriority(999)
	assert.True(t, high.Less(low))
	assert.False(t, low.Less(high))
}

func TestParseLeaseSeconds(t *testing.T) {
	_, err := ParseLeaseSeconds(0)
	assert.Error(t, err)

	l, err := ParseLeaseSeconds(60)
	require.NoError(t, err)
	assert.Equal(t, 60, l.Int())

	_, err = ParseLeaseSeconds(86401)
	assert.Error(t, err)

	l, err = ParseLeaseSeconds(86400)
	require.NoError(t, err)
	assert.Equal(t, int(86400*1e9), int(l.Duration()))
}

func TestParseAbsolutePath(t *testing.T) {
	_, err := ParseAbsolutePath("relative/path")
	assert.Error(t, err)

	// Cleaning resolves the parent segments, leaving no ".." to reject.
	up, err := ParseAbsolutePath("/abs/../../etc")
	require.NoError(t, err)
	assert.Equal(t, "/etc", up.String())

	p, err := ParseAbsolutePath("/abs/path/")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", p.String())
}

func TestAbsolutePathJoin(t *testing.T) {
	p, err := ParseAbsolutePath("/workspaces")
	require.NoError(t, err)
	joined := p.Join("my-session")
	assert.Equal(t, "/workspaces/my-session", joined.String())
}

func TestParseQueueEntryId(t *testing.T) {
	id, err := ParseQueueEntryId("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.Int64())
	assert.Equal(t, "42", id.String())

	_, err = ParseQueueEntryId("0")
	assert.Error(t, err)

	_, err = ParseQueueEntryId("-1")
	assert.Error(t, err)

	_, err = ParseQueueEntryId("not-a-number")
	assert.Error(t, err)
}
