package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceIDGenerator_Sequence(t *testing.T) {
	gen := NewSequenceIDGenerator("run")

	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
}

func TestSequenceIDGenerator_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "exec-1", NewSequenceIDGenerator("").Generate())
}

func TestSequenceIDGenerator_ConcurrentUnique(t *testing.T) {
	gen := NewSequenceIDGenerator("c")

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 500)
}
