package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameKey(t *testing.T) {
	l := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("request:1")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Zero(t, l.Len())
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	l := New()
	unlockA := l.Lock(RequestKey("a"))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock(RequestKey("b"))
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	l := New()
	unlock := l.Lock(AgentKey("x"))
	unlock()
	unlock()
	assert.Zero(t, l.Len())

	unlock = l.Lock(AgentKey("x"))
	assert.Equal(t, 1, l.Len())
	unlock()
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "request:CST-2026-0001", RequestKey("CST-2026-0001"))
	assert.Equal(t, "agent:a1", AgentKey("a1"))
	assert.Equal(t, "zone:Z1", ZoneKey("Z1"))
}
