// SPDX-License-Identifier: MIT

package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLookupRemove(t *testing.T) {
	r := New[int]()

	require.NoError(t, r.Register("a", 1))
	v, ok := r.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	r.Remove("a")
	_, ok = r.Lookup("a")
	assert.False(t, ok)
}

func TestRegisterDuplicateErrors(t *testing.T) {
	r := New[string]()
	require.NoError(t, r.Register("id", "first"))
	err := r.Register("id", "second")
	assert.Error(t, err)

	v, _ := r.Lookup("id")
	assert.Equal(t, "first", v, "a rejected duplicate must not clobber the existing entry")
}

func TestRemoveMissingIsNoop(t *testing.T) {
	r := New[int]()
	assert.NotPanics(t, func() { r.Remove("nope") })
}

func TestConcurrentRegisterIsRace(t *testing.T) {
	r := New[int]()
	var wg sync.WaitGroup
	successes := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			successes <- r.Register("shared", 1) == nil
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for ok := range successes {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one concurrent Register for the same id must win")
	assert.Equal(t, 1, r.Len())
}
