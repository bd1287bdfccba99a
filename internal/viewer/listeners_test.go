package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListeners(t *testing.T) {
	var l listeners[int]
	var got []string

	removeA := l.add(func(v int) { got = append(got, "a") })
	var removeB func()
	removeB = l.add(func(v int) {
		got = append(got, "b")
		removeB()
	})
	l.add(func(v int) { got = append(got, "c") })

	l.emit(1)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 2, l.len(), "b removed itself while emitting")

	got = nil
	removeA()
	removeA()
	l.emit(2)
	assert.Equal(t, []string{"c"}, got)

	l.clear()
	got = nil
	l.emit(3)
	assert.Empty(t, got)
}

func TestListeners_RemovedDuringEmitIsSkipped(t *testing.T) {
	var l listeners[int]
	var got []string
	var removeSecond func()

	l.add(func(int) {
		got = append(got, "first")
		removeSecond()
	})
	removeSecond = l.add(func(int) { got = append(got, "second") })

	l.emit(0)
	assert.Equal(t, []string{"first"}, got)
}
