package coordinator

import (
	"sync"
	"time"
)

// breaker is a per-node circuit breaker: consecutive forward failures
// push the node's backoff through 30s -> 60s -> 120s (capped), per
// spec.md §4.H. A node currently backing off is skipped by fan-out and
// reported as unavailable to forwarders so callers can fail fast instead
// of waiting on a dead peer's dial timeout.
type breaker struct {
	mu    sync.Mutex
	state map[string]*nodeBreaker
}

type nodeBreaker struct {
	failures   int
	untilTime  time.Time
}

var backoffSteps = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

func newBreaker() *breaker {
	return &breaker{state: make(map[string]*nodeBreaker)}
}

// Allowed reports whether node is not currently in its backoff window.
func (b *breaker) Allowed(node string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	nb, ok := b.state[node]
	if !ok {
		return true
	}
	return time.Now().After(nb.untilTime)
}

// RecordFailure marks a failed call to node, advancing its backoff.
func (b *breaker) RecordFailure(node string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	nb, ok := b.state[node]
	if !ok {
		nb = &nodeBreaker{}
		b.state[node] = nb
	}
	step := nb.failures
	if step >= len(backoffSteps) {
		step = len(backoffSteps) - 1
	}
	nb.untilTime = time.Now().Add(backoffSteps[step])
	nb.failures++
}

// RecordSuccess clears node's failure history.
func (b *breaker) RecordSuccess(node string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.state, node)
}
