package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lookupFrom(parents map[string]string) ParentLookup {
	return func(id string) (string, bool, error) {
		p, ok := parents[id]
		return p, ok, nil
	}
}

func TestCheckParent(t *testing.T) {
	// a <- b <- c
	parents := map[string]string{"a": "", "b": "a", "c": "b", "d": ""}
	lookup := lookupFrom(parents)

	assert.NoError(t, CheckParent("d", "c", lookup))
	assert.NoError(t, CheckParent("c", "", lookup))
	assert.ErrorIs(t, CheckParent("a", "c", lookup), ErrCycleDetected)
	assert.ErrorIs(t, CheckParent("a", "a", lookup), ErrCycleDetected)
	assert.ErrorIs(t, CheckParent("a", "missing", lookup), ErrNotFound)
}
