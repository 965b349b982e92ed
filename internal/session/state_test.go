package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{Creating, Ready, true},
		{Creating, Failed, true},
		{Creating, Active, false},
		{Ready, Active, true},
		{Ready, Failed, true},
		{Ready, Completed, false},
		{Active, Paused, true},
		{Active, Completed, true},
		{Active, Failed, true},
		{Paused, Active, true},
		{Paused, Completed, true},
		{Completed, Active, false},
		{Failed, Ready, false},
	}
	for _, c := range cases {
		err := Transition(c.from, c.to)
		if c.ok {
			assert.NoError(t, err, "%s -> %s", c.from, c.to)
		} else {
			assert.ErrorIs(t, err, zjjerr.ErrInvalidTransition, "%s -> %s", c.from, c.to)
		}
	}
}

func TestTransitionParent(t *testing.T) {
	assert.NoError(t, TransitionParent(Root(), Root()))
	assert.True(t, errors.Is(TransitionParent(Root(), ChildOf("p")), zjjerr.ErrInvalidTransition))
	assert.NoError(t, TransitionParent(ChildOf("p"), ChildOf("q")))
	assert.Error(t, TransitionParent(ChildOf("p"), Root()))
}
