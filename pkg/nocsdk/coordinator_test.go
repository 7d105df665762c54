package nocsdk

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefreshCoordinatorSingleLeader(t *testing.T) {
	t.Parallel()

	c := NewRefreshCoordinator()
	require.False(t, c.InFlight())

	leader, wait := c.AcquireOrWait()
	require.True(t, leader)
	require.Nil(t, wait)
	require.True(t, c.InFlight())

	const waiters = 5
	chans := make([]<-chan RefreshResult, 0, waiters)
	for range waiters {
		leader, wait := c.AcquireOrWait()
		require.False(t, leader)
		require.NotNil(t, wait)
		chans = append(chans, wait)
	}
	require.Equal(t, waiters, c.Pending())

	require.True(t, c.Settle("tok", nil))
	require.False(t, c.InFlight())
	require.Zero(t, c.Pending())

	for _, ch := range chans {
		res, ok := <-ch
		require.True(t, ok)
		require.Equal(t, RefreshResult{Token: "tok"}, res)

		// Each waiter is released exactly once.
		_, ok = <-ch
		require.False(t, ok)
	}
}

func TestRefreshCoordinatorSettleTwice(t *testing.T) {
	t.Parallel()

	c := NewRefreshCoordinator()
	require.False(t, c.Settle("x", nil), "settle without a refresh in flight")

	leader, _ := c.AcquireOrWait()
	require.True(t, leader)

	_, wait := c.AcquireOrWait()

	boom := errors.New("boom")
	require.True(t, c.Settle("", boom))
	require.False(t, c.Settle("late", nil))

	res := <-wait
	require.ErrorIs(t, res.Err, boom)
	require.Empty(t, res.Token)

	// A new episode can start after settling.
	leader, _ = c.AcquireOrWait()
	require.True(t, leader)
}

func TestRefreshCoordinatorAbandonedWaiter(t *testing.T) {
	t.Parallel()

	c := NewRefreshCoordinator()
	c.AcquireOrWait()
	c.AcquireOrWait() // never read

	done := make(chan struct{})
	go func() {
		c.Settle("tok", nil)
		close(done)
	}()
	<-done
}

func TestRefreshCoordinatorConcurrentAcquire(t *testing.T) {
	t.Parallel()

	c := NewRefreshCoordinator()

	const callers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		leaders int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if leader, _ := c.AcquireOrWait(); leader {
				mu.Lock()
				leaders++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, leaders)
	require.Equal(t, callers-1, c.Pending())
}

func TestCoordinatorRegistry(t *testing.T) {
	t.Parallel()

	r := NewCoordinatorRegistry()
	a := r.For("https://sso.example.com/api/auth/token/refresh/")
	b := r.For("https://sso.example.com/api/auth/token/refresh")
	other := r.For("https://other.example.com/api/auth/token/refresh/")

	require.Same(t, a, b)
	require.NotSame(t, a, other)
}
