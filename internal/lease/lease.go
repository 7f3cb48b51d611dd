// Package lease provides the TTL-lease policy layer over the route store.
//
// A lease is a promise that no other worker will act on the same route
// concurrently. There is no heartbeat channel: a lease whose TTL has passed
// is considered abandoned and may be reacquired by any worker, which is the
// sole recovery mechanism for a crashed worker. A superseded worker's late
// write fails the store's compare-and-set transition instead of corrupting
// state, so the TTL must be sized to bound the longest exploration or test
// run.
package lease

import (
	"time"

	"github.com/example/wayfinder/internal/store"
)

// DefaultTTL bounds how long a worker may hold a route during exploration
// or testing before the lease becomes reclaimable.
const DefaultTTL = 15 * time.Minute

// Manager grants exclusive, time-bounded ownership of routes.
type Manager struct {
	store *store.Store
	ttl   time.Duration
}

// NewManager creates a lease manager. A non-positive ttl falls back to
// DefaultTTL.
func NewManager(s *store.Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: s, ttl: ttl}
}

// TTL returns the configured lease duration.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Acquire attempts to take the route's lease. Returns false when another
// worker holds an unexpired lease.
func (m *Manager) Acquire(userLevel, route string) (bool, error) {
	return m.store.TryAcquireLease(userLevel, route, m.ttl)
}

// Release clears the route's lease. Idempotent.
func (m *Manager) Release(userLevel, route string) error {
	return m.store.ReleaseLease(userLevel, route)
}
