package rt

import (
	"fmt"
	"sort"
	"sync"
)

// ClockRegistry provisions clocks by URI to the participants of a run.
//
// Thread-safety: safe for concurrent use.
type ClockRegistry struct {
	mu     sync.RWMutex
	clocks map[string]*AcceleratedClock
}

func NewClockRegistry() *ClockRegistry {
	return &ClockRegistry{clocks: make(map[string]*AcceleratedClock)}
}

// Register adds a clock. A URI can only be registered once.
func (r *ClockRegistry) Register(c *AcceleratedClock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.clocks[c.URI()]; dup {
		return fmt.Errorf("clock %s already registered", c.URI())
	}
	r.clocks[c.URI()] = c
	return nil
}

// Get returns the clock registered under uri.
func (r *ClockRegistry) Get(uri string) (*AcceleratedClock, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clocks[uri]
	return c, ok
}

// Remove forgets the clock registered under uri.
func (r *ClockRegistry) Remove(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clocks, uri)
}

// URIs returns the registered clock URIs, sorted.
func (r *ClockRegistry) URIs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clocks))
	for uri := range r.clocks {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}
