// Package lockmap implements a table of named, lazily created, exclusive
// locks.
//
// Names are arbitrary strings; docstore uses collection and index
// identifiers. Locks are not reentrant and have no reader/writer distinction:
// a reader that needs a consistent view across several steps takes the same
// lock a writer would. There is no timeout or cancellation, and no deadlock
// detection. Callers that take several locks must always take them in one
// global order.
package lockmap

import (
	"fmt"
	"sync"
	"time"
)

// Map is a table of named locks. The zero Map is ready to use.
type Map struct {
	locks sync.Map // name -> *entry

	// OnWait, if set, is called after every Lock with the time spent waiting.
	OnWait func(name string, waited time.Duration)
}

type entry struct {
	mu sync.Mutex
}

func New() *Map {
	return &Map{}
}

func (m *Map) entry(name string) *entry {
	if e, ok := m.locks.Load(name); ok {
		return e.(*entry)
	}
	e, _ := m.locks.LoadOrStore(name, &entry{})
	return e.(*entry)
}

// Lock blocks until the caller is the sole owner of name.
func (m *Map) Lock(name string) {
	var start time.Time
	if m.OnWait != nil {
		start = time.Now()
	}
	for {
		e := m.entry(name)
		e.mu.Lock()
		if m.current(name, e) {
			break
		}
		// Removed while we waited; a fresh entry guards name now.
		e.mu.Unlock()
	}
	if m.OnWait != nil {
		m.OnWait(name, time.Since(start))
	}
}

// TryLock acquires name if it is free and reports whether it did.
func (m *Map) TryLock(name string) bool {
	for {
		e := m.entry(name)
		if !e.mu.TryLock() {
			return false
		}
		if m.current(name, e) {
			return true
		}
		e.mu.Unlock()
	}
}

func (m *Map) current(name string, e *entry) bool {
	cur, ok := m.locks.Load(name)
	return ok && cur.(*entry) == e
}

// Release frees name. Releasing an unknown name panics; releasing a known
// lock that is not held is a fatal error, as with sync.Mutex.
//
// The entry found here is always the one the caller locked: Lock only
// returns once its entry is current, and Remove never drops a held entry.
func (m *Map) Release(name string) {
	e, ok := m.locks.Load(name)
	if !ok {
		panic(fmt.Sprintf("lockmap: release of unknown lock %q", name))
	}
	e.(*entry).mu.Unlock()
}

// Remove forgets name, bounding the table once the resource it guards is
// gone. A name that is currently held is left alone. Goroutines already
// waiting on a removed entry retry against a fresh one.
func (m *Map) Remove(name string) {
	v, ok := m.locks.Load(name)
	if !ok {
		return
	}
	e := v.(*entry)
	if !e.mu.TryLock() {
		return
	}
	m.locks.CompareAndDelete(name, e)
	e.mu.Unlock()
}

// With runs fn while holding name.
func (m *Map) With(name string, fn func() error) error {
	m.Lock(name)
	defer m.Release(name)
	return fn()
}

// Len returns the number of locks currently in the table.
func (m *Map) Len() int {
	n := 0
	m.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
