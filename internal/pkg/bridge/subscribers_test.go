package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryAddAndGet(t *testing.T) {
	r := newRegistry[func()]()

	var calls []int
	r.add("a", func() { calls = append(calls, 1) })
	r.add("a", func() { calls = append(calls, 2) })
	r.add("b", func() { calls = append(calls, 3) })

	for _, fn := range r.get("a") {
		fn()
	}
	assert.Equal(t, []int{1, 2}, calls)
	assert.Len(t, r.get("b"), 1)
	assert.Empty(t, r.get("missing"))
}

func TestRegistryUnsubscribeReusesSlot(t *testing.T) {
	r := newRegistry[func()]()

	var calls []int
	unsubscribe := r.add("a", func() { calls = append(calls, 1) })
	r.add("a", func() { calls = append(calls, 2) })

	unsubscribe()
	unsubscribe() // must be a no-op

	for _, fn := range r.get("a") {
		fn()
	}
	assert.Equal(t, []int{2}, calls)

	// The freed slot is reused rather than the list growing.
	r.add("a", func() { calls = append(calls, 4) })
	assert.Len(t, r.entries["a"], 2)

	calls = nil
	for _, fn := range r.get("a") {
		fn()
	}
	assert.ElementsMatch(t, []int{2, 4}, calls)
}
