package lockmap

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMap_MutualExclusion(t *testing.T) {
	var m Map
	names := []string{"a", "b", "c"}
	counters := make([]int, len(names))

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			i := g % len(names)
			for n := 0; n < 200; n++ {
				m.Lock(names[i])
				counters[i]++
				m.Release(names[i])
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, n := range counters {
		total += n
	}
	require.Equal(t, 16*200, total)
}

func TestMap_TryLock(t *testing.T) {
	m := New()
	require.True(t, m.TryLock("x"))
	require.False(t, m.TryLock("x"))
	require.True(t, m.TryLock("y"))
	m.Release("x")
	require.True(t, m.TryLock("x"))
	m.Release("x")
	m.Release("y")
}

func TestMap_ReleaseUnknownPanics(t *testing.T) {
	m := New()
	require.PanicsWithValue(t, `lockmap: release of unknown lock "nope"`, func() {
		m.Release("nope")
	})
}

func TestMap_RemoveAndLen(t *testing.T) {
	m := New()
	require.Zero(t, m.Len())
	m.Lock("a")
	m.Lock("b")
	require.Equal(t, 2, m.Len())
	m.Release("a")
	m.Remove("a")
	require.Equal(t, 1, m.Len())
	m.Release("b")

	m.Lock("a")
	m.Release("a")
	require.Equal(t, 2, m.Len())
}

func TestMap_With(t *testing.T) {
	m := New()
	boom := errors.New("boom")
	err := m.With("x", func() error {
		require.False(t, m.TryLock("x"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, m.TryLock("x"), "With releases on return")
	m.Release("x")
}

func TestMap_OnWait(t *testing.T) {
	var mu sync.Mutex
	waits := map[string]time.Duration{}
	m := &Map{OnWait: func(name string, waited time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		waits[name] = waited
	}}

	m.Lock("x")
	done := make(chan struct{})
	go func() {
		m.Lock("x")
		m.Release("x")
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	m.Release("x")
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, waits, "x")
	require.GreaterOrEqual(t, waits["x"], 10*time.Millisecond)
}

func TestMap_RemoveWithWaiter(t *testing.T) {
	m := New()
	m.Lock("c")

	acquired := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Lock("c")
		close(acquired)
		m.Release("c")
	}()
	time.Sleep(20 * time.Millisecond)
	m.Release("c")
	m.Remove("c")
	<-done
	<-acquired

	require.True(t, m.TryLock("c"))
	m.Release("c")
}

func TestMap_RemoveHeldIsNoop(t *testing.T) {
	m := New()
	m.Lock("a")
	m.Remove("a")
	require.Equal(t, 1, m.Len())
	require.False(t, m.TryLock("a"))
	m.Release("a")

	m.Remove("a")
	require.Zero(t, m.Len())
	m.Remove("never")
}

func TestMap_RemoveChurnKeepsExclusion(t *testing.T) {
	var m Map
	var counter int
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				m.Lock("x")
				counter++
				m.Release("x")
				m.Remove("x")
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 8*200, counter)
}
