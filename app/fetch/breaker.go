package fetch

import (
	"sync"
	"time"
)

// Circuit breaker states, tracked per host and shared by every feed
// pointing at that host.
const (
	BreakerClosed   = "closed"
	BreakerOpen     = "open"
	BreakerHalfOpen = "half-open"
)

type hostState struct {
	state               string
	consecutiveFailures int
	openedAt            time.Time
	probing             bool
}

// BreakerRegistry keeps one circuit breaker per host. All transitions happen
// under a single mutex so concurrent workers observe a consistent failure
// count for a shared host.
type BreakerRegistry struct {
	mu        sync.Mutex
	hosts     map[string]*hostState
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// BreakerStatus is a read-only snapshot of one host's breaker.
type BreakerStatus struct {
	Host                string
	State               string
	ConsecutiveFailures int
	OpenedAt            *time.Time
}

func NewBreakerRegistry(threshold int, cooldown time.Duration) *BreakerRegistry {
	return &BreakerRegistry{
		hosts:     make(map[string]*hostState),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (b *BreakerRegistry) host(host string) *hostState {
	hs, ok := b.hosts[host]
	if !ok {
		hs = &hostState{state: BreakerClosed}
		b.hosts[host] = hs
	}
	return hs
}

// Allow reports whether a request to the host may proceed. An open breaker
// rejects outright until the cooldown elapses, then admits exactly one
// half-open probe at a time.
func (b *BreakerRegistry) Allow(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.host(host)
	switch hs.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(hs.openedAt) < b.cooldown {
			return false
		}
		hs.state = BreakerHalfOpen
		hs.probing = true
		return true
	case BreakerHalfOpen:
		if hs.probing {
			return false
		}
		hs.probing = true
		return true
	}
	return true
}

// OnSuccess closes the host's breaker and resets its failure count.
func (b *BreakerRegistry) OnSuccess(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.host(host)
	hs.state = BreakerClosed
	hs.consecutiveFailures = 0
	hs.probing = false
}

// OnFailure increments the host's consecutive failure count. Crossing the
// threshold opens the breaker; a failed half-open probe reopens it and
// restarts the cooldown clock.
func (b *BreakerRegistry) OnFailure(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.host(host)
	hs.consecutiveFailures++
	hs.probing = false

	if hs.state == BreakerHalfOpen || hs.consecutiveFailures >= b.threshold {
		hs.state = BreakerOpen
		hs.openedAt = b.now()
	}
}

// State returns the current breaker state for a host
func (b *BreakerRegistry) State(host string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host(host).state
}

// Snapshot returns the status of every tracked host
func (b *BreakerRegistry) Snapshot() []BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	statuses := make([]BreakerStatus, 0, len(b.hosts))
	for host, hs := range b.hosts {
		status := BreakerStatus{
			Host:                host,
			State:               hs.state,
			ConsecutiveFailures: hs.consecutiveFailures,
		}
		if !hs.openedAt.IsZero() {
			openedAt := hs.openedAt
			status.OpenedAt = &openedAt
		}
		statuses = append(statuses, status)
	}
	return statuses
}
