package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := New()
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("wallet:a")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, counter)
	assert.Equal(t, 0, km.Len(), "released keys must be dropped")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := New()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()
	<-done
}

func TestKeyedMutex_LockAllOverlappingSets(t *testing.T) {
	km := New()
	var wg sync.WaitGroup
	balances := map[string]int{"a": 0, "b": 0, "c": 0}

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := km.LockAll("a", "b")
			defer unlock()
			balances["a"]--
			balances["b"]++
		}()
		go func() {
			defer wg.Done()
			unlock := km.LockAll("b", "a", "c", "a")
			defer unlock()
			balances["b"]--
			balances["c"]++
			balances["a"]++
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, balances["a"])
	assert.Equal(t, 0, balances["b"])
	assert.Equal(t, 100, balances["c"])
	assert.Equal(t, 0, km.Len())
}
