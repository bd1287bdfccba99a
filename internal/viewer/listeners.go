package viewer

// listeners is an owned list of callbacks with explicit unsubscribe
// handles. Emit iterates a snapshot, so callbacks may unsubscribe themselves
// or others while it runs. Not safe for concurrent use; main queue only.
type listeners[T any] struct {
	entries []listener[T]
}

type listener[T any] struct {
	fn      func(T)
	removed *bool
}

// add registers fn and returns a function that removes it. Calling the
// returned function more than once is a no-op.
func (l *listeners[T]) add(fn func(T)) func() {
	removed := new(bool)
	l.entries = append(l.entries, listener[T]{fn: fn, removed: removed})
	return func() {
		if *removed {
			return
		}
		*removed = true
		l.prune()
	}
}

func (l *listeners[T]) emit(v T) {
	snapshot := append([]listener[T](nil), l.entries...)
	for _, e := range snapshot {
		if *e.removed {
			continue
		}
		e.fn(v)
	}
}

func (l *listeners[T]) prune() {
	live := l.entries[:0]
	for _, e := range l.entries {
		if !*e.removed {
			live = append(live, e)
		}
	}
	for i := len(live); i < len(l.entries); i++ {
		l.entries[i] = listener[T]{}
	}
	l.entries = live
}

func (l *listeners[T]) clear() {
	for _, e := range l.entries {
		*e.removed = true
	}
	l.entries = nil
}

func (l *listeners[T]) len() int {
	return len(l.entries)
}
