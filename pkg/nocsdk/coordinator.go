package nocsdk

import (
	"strings"
	"sync"
)

// RefreshResult is delivered to every request that waited on a refresh.
type RefreshResult struct {
	Token string
	Err   error
}

// RefreshCoordinator enforces a single in-flight token refresh. The first
// caller of AcquireOrWait becomes the leader and must call Settle; every
// caller that arrives while the refresh is in flight gets a channel that
// receives the leader's result exactly once.
type RefreshCoordinator struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan RefreshResult
}

func NewRefreshCoordinator() *RefreshCoordinator {
	return &RefreshCoordinator{}
}

// AcquireOrWait either makes the caller the leader (leader == true, wait is
// nil) or enqueues it behind the in-flight refresh.
func (c *RefreshCoordinator) AcquireOrWait() (leader bool, wait <-chan RefreshResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.inFlight {
		c.inFlight = true
		return true, nil
	}

	// Buffered so Settle never blocks on a waiter that gave up.
	ch := make(chan RefreshResult, 1)
	c.waiters = append(c.waiters, ch)
	return false, ch
}

// Settle publishes the refresh outcome to every waiter and clears the
// in-flight flag. It returns false if no refresh was in flight.
func (c *RefreshCoordinator) Settle(token string, err error) bool {
	c.mu.Lock()
	if !c.inFlight {
		c.mu.Unlock()
		return false
	}
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.mu.Unlock()

	result := RefreshResult{Token: token, Err: err}
	for _, ch := range waiters {
		ch <- result
		close(ch)
	}
	return true
}

// Pending reports how many requests are queued behind the current refresh.
func (c *RefreshCoordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// InFlight reports whether a refresh is currently running.
func (c *RefreshCoordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// CoordinatorRegistry hands out one RefreshCoordinator per refresh endpoint
// so that clients talking to different backends but refreshing against the
// same SSO share a refresh episode.
type CoordinatorRegistry struct {
	mu     sync.Mutex
	byName map[string]*RefreshCoordinator
}

func NewCoordinatorRegistry() *CoordinatorRegistry {
	return &CoordinatorRegistry{byName: make(map[string]*RefreshCoordinator)}
}

// For returns the coordinator for endpoint, creating it on first use.
func (r *CoordinatorRegistry) For(endpoint string) *RefreshCoordinator {
	key := strings.TrimSuffix(strings.TrimSpace(endpoint), "/")

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byName[key]; ok {
		return c
	}
	c := NewRefreshCoordinator()
	r.byName[key] = c
	return c
}
