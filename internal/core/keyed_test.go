package core

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesOneKey(t *testing.T) {
	var km KeyedMutex[string]
	var wg sync.WaitGroup
	var mu sync.Mutex
	inside, maxInside := 0, 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("a")
			defer unlock()
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max holders = %d, want 1", maxInside)
	}
	if n := km.Len(); n != 0 {
		t.Errorf("Len() = %d after release, want 0", n)
	}
}

func TestKeyedMutex_ForgetsReleasedKeys(t *testing.T) {
	var km KeyedMutex[int]
	for i := 0; i < 100; i++ {
		km.Lock(i)()
	}
	if n := km.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}

	unlockA := km.Lock(1)
	unlockB := km.Lock(2)
	if n := km.Len(); n != 2 {
		t.Errorf("Len() = %d while held, want 2", n)
	}
	unlockA()
	unlockB()
	if n := km.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}
}
