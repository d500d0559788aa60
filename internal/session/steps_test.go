package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepStoreAppendAssignsDenseIndex(t *testing.T) {
	store := NewStepStore(10)
	a := store.Append(&Step{Action: ActionClick})
	b := store.Append(&Step{Action: ActionScroll})

	assert.Equal(t, 0, a.Index)
	assert.Equal(t, 1, b.Index)
	assert.Len(t, store.List(), 2)
}

func TestStepStoreOverflowDropsOldestAndReindexes(t *testing.T) {
	var deleted *Step
	store := NewStepStore(2)
	store.OnDeleted(func(s *Step) { deleted = s })

	first := store.Append(&Step{Action: ActionClick, Caption: "first"})
	store.Append(&Step{Action: ActionClick, Caption: "second"})
	store.Append(&Step{Action: ActionClick, Caption: "third"})

	require.NotNil(t, deleted)
	assert.Equal(t, "first", deleted.Caption)
	assert.Equal(t, first.ID, deleted.ID)

	steps := store.List()
	require.Len(t, steps, 2)
	assert.Equal(t, 0, steps[0].Index)
	assert.Equal(t, 1, steps[1].Index)
	assert.Equal(t, "second", steps[0].Caption)
}

func TestStepStoreDeleteReindexes(t *testing.T) {
	store := NewStepStore(10)
	a := store.Append(&Step{Action: ActionClick})
	store.Append(&Step{Action: ActionScroll})
	c := store.Append(&Step{Action: ActionKeypress})

	_, ok := store.Delete(a.ID)
	require.True(t, ok)

	steps := store.List()
	require.Len(t, steps, 2)
	for i, s := range steps {
		assert.Equal(t, i, s.Index)
	}
	assert.Equal(t, c.ID, steps[1].ID)
}

func TestStepStoreDeleteUnknownReturnsFalse(t *testing.T) {
	store := NewStepStore(10)
	_, ok := store.Delete("nonexistent")
	assert.False(t, ok)
}

func TestStepStoreUpdateCaption(t *testing.T) {
	store := NewStepStore(10)
	a := store.Append(&Step{Action: ActionClick})

	updated, ok := store.UpdateCaption(a.ID, "clicked the button")
	require.True(t, ok)
	assert.Equal(t, "clicked the button", updated.Caption)
}

func TestStepStoreReplaceReindexesFromImport(t *testing.T) {
	store := NewStepStore(10)
	store.Append(&Step{Action: ActionClick})

	store.Replace([]*Step{
		{ID: "x", Action: ActionNavigate},
		{ID: "y", Action: ActionClick},
	})

	steps := store.List()
	require.Len(t, steps, 2)
	assert.Equal(t, 0, steps[0].Index)
	assert.Equal(t, 1, steps[1].Index)
}

func TestStepStoreReplaceTruncatesOverCapacity(t *testing.T) {
	store := NewStepStore(2)
	store.Replace([]*Step{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	})
	assert.Len(t, store.List(), 2)
}
