package services

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuelLocksSerializeSameDuel(t *testing.T) {
	locks := NewDuelLocks()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("duel-1")
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, locks.Len())
}

func TestDuelLocksIndependentDuels(t *testing.T) {
	locks := NewDuelLocks()

	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "un duelo distinto no debería bloquearse")
	}
	assert.Equal(t, 1, locks.Len())
}
