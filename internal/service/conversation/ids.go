package conversation

import (
	"fmt"
	"sync/atomic"
)

// idGenerator produces stable, unique message ids within one timeline.
type idGenerator struct {
	prefix  string
	counter uint64
}

func newIDGenerator(prefix string) *idGenerator {
	return &idGenerator{prefix: prefix}
}

func (g *idGenerator) next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-msg-%d", g.prefix, n)
}
