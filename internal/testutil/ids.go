package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator returns "<prefix>-1", "<prefix>-2", ... for
// deterministic execution IDs in golden output.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDGenerator creates a generator. An empty prefix defaults to
// "exec".
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	if prefix == "" {
		prefix = "exec"
	}
	return &SequenceIDGenerator{prefix: prefix}
}

// Generate returns the next ID in the sequence.
func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
