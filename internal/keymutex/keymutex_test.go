package keymutex

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLock_SerializesSameKey(t *testing.T) {
	t.Parallel()

	km := New()
	var active atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := km.Lock("root")
			defer release()

			if cur := active.Add(1); cur != 1 {
				t.Errorf("concurrent holders under one key: %d", cur)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()
}

func TestLock_DifferentKeysIndependent(t *testing.T) {
	t.Parallel()

	km := New()
	releaseA := km.Lock("a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := km.Lock("b")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on independent key blocked")
	}
}

func TestLock_ReleaseIdempotent(t *testing.T) {
	t.Parallel()

	km := New()
	release := km.Lock("k")
	release()
	release()

	release2 := km.Lock("k")
	release2()
}

func TestLock_EntriesDropped(t *testing.T) {
	t.Parallel()

	km := New()
	for i := 0; i < 8; i++ {
		release := km.Lock("k")
		release()
	}

	km.mu.Lock()
	n := len(km.entries)
	km.mu.Unlock()
	if n != 0 {
		t.Fatalf("entries leaked: %d", n)
	}
}
