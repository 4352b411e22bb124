package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchOrder(t *testing.T) {
	s := New[int]()
	var got []string
	s.Connect(func(v int) { got = append(got, "a") })
	s.Connect(func(v int) { got = append(got, "b") })

	s.Dispatch(1)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestAddIsIdempotent(t *testing.T) {
	s := New[int]()
	calls := 0
	l := Func(func(int) { calls++ })
	s.Add(l)
	s.Add(l)

	s.Dispatch(0)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, calls)
}

func TestMutationDuringDispatchIsDeferred(t *testing.T) {
	s := New[int]()
	var order []string
	late := Func(func(int) { order = append(order, "late") })
	var first *Listener[int]
	first = s.Connect(func(int) {
		order = append(order, "first")
		s.Add(late)
		s.Remove(first)
	})
	s.Connect(func(int) { order = append(order, "second") })

	s.Dispatch(0)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.False(t, s.Has(first))
	assert.True(t, s.Has(late))

	order = nil
	s.Dispatch(0)
	assert.Equal(t, []string{"second", "late"}, order)
}

func TestRemoveAllDuringDispatchReplaysInOrder(t *testing.T) {
	s := New[int]()
	kept := Func(func(int) {})
	s.Connect(func(int) {
		s.RemoveAll()
		s.Add(kept)
	})

	s.Dispatch(0)

	require.Equal(t, 1, s.Len())
	assert.True(t, s.Has(kept))
}

func TestPanickingListenerLeavesSignalUsable(t *testing.T) {
	s := New[int]()
	s.Connect(func(int) { panic("boom") })

	assert.Panics(t, func() { s.Dispatch(0) })

	l := Func(func(int) {})
	s.Add(l)
	assert.True(t, s.Has(l))
}
