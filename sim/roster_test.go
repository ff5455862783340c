package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoster_NewestFirstWithRemovalByEntry(t *testing.T) {
	// GIVEN a roster of four members
	var r roster[int]
	entries := make([]entry, 4)
	for i := range entries {
		entries[i] = r.pushFront(i)
	}
	assert.Equal(t, []int{3, 2, 1, 0}, r.slice())

	// WHEN a middle member is removed through its entry
	assert.True(t, r.remove(entries[2]))

	// THEN the order of the rest is kept and the entry is spent
	assert.Equal(t, []int{3, 1, 0}, r.slice())
	assert.Equal(t, 3, r.Len())
	assert.False(t, r.remove(entries[2]))
}

func TestRoster_EntryBelongsToOneRoster(t *testing.T) {
	var a, b roster[string]
	ea := a.pushFront("x")
	b.pushFront("y")

	assert.True(t, a.holds(ea))
	assert.False(t, b.holds(ea))
	assert.False(t, b.remove(ea))
	assert.False(t, a.holds(entry{}))
	assert.Equal(t, []string{"y"}, b.slice())
}

func TestRoster_DeleteFuncAndSort(t *testing.T) {
	var r roster[int]
	entries := map[int]entry{}
	for _, v := range []int{5, 2, 8, 3, 6} {
		entries[v] = r.pushFront(v)
	}

	assert.Equal(t, 2, r.deleteFunc(func(v int) bool { return v%2 == 1 }))
	assert.Equal(t, []int{6, 8, 2}, r.slice())

	sortByKey(&r, func(v int) int { return v })
	assert.Equal(t, []int{2, 6, 8}, r.slice())

	// entries survive reordering
	assert.True(t, r.remove(entries[6]))
	assert.Equal(t, []int{2, 8}, r.slice())
}
