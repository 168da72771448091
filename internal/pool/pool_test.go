package pool

// Test Plan for the connection pool:
//
// 1. Construction validation (min > max, negatives, nil factory)
// 2. Reuse: max=1 with N acquire/release cycles creates one connection
// 3. Waiting: at capacity acquires queue FIFO, time out, and count
// 4. Release: double release is a no-op, invalid connections destroyed,
//    direct handoff to the oldest waiter
// 5. Health sweep: failing validators and idle expiry, min respected
// 6. Close: idempotent, fails waiters, drains leases, force-destroys

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id int
}

type connFactory struct {
	mu      sync.Mutex
	created int
	fail    error
}

func (f *connFactory) make(context.Context) (*fakeConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.created++
	return &fakeConn{id: f.created}, nil
}

func newTestPool(t *testing.T, cfg Config, validator func(*fakeConn) bool) (*Pool[*fakeConn], *connFactory, *atomic.Int64) {
	t.Helper()
	factory := &connFactory{}
	var destroyed atomic.Int64
	p, err := New(cfg, factory.make, func(*fakeConn) error {
		destroyed.Add(1)
		return nil
	}, validator)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close(0) })
	return p, factory, &destroyed
}

func TestPoolConstruction(t *testing.T) {
	t.Parallel()

	factory := &connFactory{}

	_, err := New[*fakeConn](Config{MinConnections: 5, MaxConnections: 2}, factory.make, nil, nil)
	require.Error(t, err)

	_, err = New[*fakeConn](Config{MinConnections: -1, MaxConnections: 2}, factory.make, nil, nil)
	require.Error(t, err)

	_, err = New[*fakeConn](Config{MaxConnections: 2, AcquireTimeout: -time.Second}, factory.make, nil, nil)
	require.Error(t, err)

	_, err = New[*fakeConn](Config{MaxConnections: 2}, nil, nil, nil)
	require.Error(t, err)
}

func TestPoolReuse(t *testing.T) {
	t.Parallel()

	p, factory, _ := newTestPool(t, Config{MaxConnections: 1, AcquireTimeout: time.Second}, nil)

	for i := 0; i < 10; i++ {
		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		p.Release(conn)
	}

	assert.Equal(t, 1, factory.created, "max=1 must never create a second connection")
	stats := p.Stats()
	assert.Equal(t, int64(10), stats.TotalAcquired)
	assert.Equal(t, int64(10), stats.TotalReleased)
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.IdleConnections)
}

func TestPoolTimeoutAndFIFO(t *testing.T) {
	t.Parallel()

	// {min:0, max:2, acquireTimeout:100ms}: two acquires succeed, a third
	// queues and times out; after a release the next waiter gets the
	// connection in submission order.
	p, _, _ := newTestPool(t, Config{MaxConnections: 2, AcquireTimeout: 100 * time.Millisecond}, nil)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	_, err = p.Acquire(context.Background())
	require.NoError(t, err)

	timedOut := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		timedOut <- err
	}()

	require.Eventually(t, func() bool {
		return p.Stats().WaitingRequests >= 1
	}, time.Second, 5*time.Millisecond)

	err = <-timedOut
	require.ErrorIs(t, err, ErrAcquireTimeout)
	assert.Equal(t, int64(1), p.Stats().TotalTimeouts)

	// Two fresh waiters; the first-submitted one wins the release.
	type got struct {
		order int
		conn  *fakeConn
	}
	results := make(chan got, 2)
	var first, second sync.WaitGroup
	first.Add(1)
	go func() {
		first.Done()
		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		results <- got{order: 1, conn: conn}
	}()
	first.Wait()
	require.Eventually(t, func() bool { return p.Stats().WaitingRequests == 1 }, time.Second, time.Millisecond)

	second.Add(1)
	go func() {
		second.Done()
		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		results <- got{order: 2, conn: conn}
	}()
	second.Wait()
	require.Eventually(t, func() bool { return p.Stats().WaitingRequests == 2 }, time.Second, time.Millisecond)

	p.Release(c1)
	winner := <-results
	assert.Equal(t, 1, winner.order, "release must hand off to the oldest waiter")
	assert.Same(t, c1, winner.conn, "handoff passes the released connection directly")

	// Unblock the remaining waiter before its timeout fires.
	p.Release(winner.conn)
	<-results
}

func TestPoolRelease(t *testing.T) {
	t.Parallel()

	t.Run("double release is a no-op", func(t *testing.T) {
		t.Parallel()
		p, _, _ := newTestPool(t, Config{MaxConnections: 2}, nil)
		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)

		p.Release(conn)
		p.Release(conn)

		stats := p.Stats()
		assert.Equal(t, int64(1), stats.TotalReleased)
		assert.Equal(t, 1, stats.IdleConnections)
	})

	t.Run("invalid connection is destroyed on release", func(t *testing.T) {
		t.Parallel()
		valid := atomic.Bool{}
		valid.Store(true)
		p, _, destroyed := newTestPool(t, Config{MaxConnections: 2}, func(*fakeConn) bool { return valid.Load() })

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		valid.Store(false)
		p.Release(conn)

		assert.Equal(t, int64(1), destroyed.Load())
		assert.Equal(t, 0, p.Stats().IdleConnections)
	})

	t.Run("factory failure propagates", func(t *testing.T) {
		t.Parallel()
		factory := &connFactory{fail: errors.New("backend down")}
		p, err := New[*fakeConn](Config{MaxConnections: 1}, factory.make, nil, nil)
		require.NoError(t, err)
		defer p.Close(0)

		_, err = p.Acquire(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend down")
		// The failed slot is released; a later acquire may try again.
		assert.Equal(t, 0, p.Stats().TotalConnections)
	})
}

func TestPoolHealthSweep(t *testing.T) {
	t.Parallel()

	t.Run("drops idle connections failing validation", func(t *testing.T) {
		t.Parallel()
		valid := atomic.Bool{}
		valid.Store(true)
		p, _, destroyed := newTestPool(t, Config{
			MaxConnections:      2,
			HealthCheckInterval: 10 * time.Millisecond,
		}, func(*fakeConn) bool { return valid.Load() })

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		p.Release(conn)
		require.Equal(t, 1, p.Stats().IdleConnections)

		valid.Store(false)
		require.Eventually(t, func() bool {
			return destroyed.Load() == 1 && p.Stats().IdleConnections == 0
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("idle expiry respects min connections", func(t *testing.T) {
		t.Parallel()
		p, _, destroyed := newTestPool(t, Config{
			MinConnections:      1,
			MaxConnections:      2,
			IdleTimeout:         10 * time.Millisecond,
			HealthCheckInterval: 10 * time.Millisecond,
		}, nil)

		c1, err := p.Acquire(context.Background())
		require.NoError(t, err)
		c2, err := p.Acquire(context.Background())
		require.NoError(t, err)
		p.Release(c1)
		p.Release(c2)

		require.Eventually(t, func() bool {
			return p.Stats().TotalConnections == 1
		}, time.Second, 5*time.Millisecond)

		// The floor holds even after more sweeps.
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, p.Stats().TotalConnections)
		assert.Equal(t, int64(1), destroyed.Load())
	})
}

func TestPoolClose(t *testing.T) {
	t.Parallel()

	t.Run("acquire after close fails", func(t *testing.T) {
		t.Parallel()
		p, _, _ := newTestPool(t, Config{MaxConnections: 1}, nil)
		require.NoError(t, p.Close(0))
		_, err := p.Acquire(context.Background())
		require.ErrorIs(t, err, ErrClosed)
	})

	t.Run("close is idempotent and fails waiters", func(t *testing.T) {
		t.Parallel()
		p, _, _ := newTestPool(t, Config{MaxConnections: 1}, nil)
		_, err := p.Acquire(context.Background())
		require.NoError(t, err)

		waited := make(chan error, 1)
		go func() {
			_, err := p.Acquire(context.Background())
			waited <- err
		}()
		require.Eventually(t, func() bool { return p.Stats().WaitingRequests == 1 }, time.Second, time.Millisecond)

		require.NoError(t, p.Close(0))
		require.NoError(t, p.Close(0))
		require.ErrorIs(t, <-waited, ErrClosed)
	})

	t.Run("drain waits for released leases", func(t *testing.T) {
		t.Parallel()
		p, _, destroyed := newTestPool(t, Config{MaxConnections: 1}, nil)
		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)

		go func() {
			time.Sleep(20 * time.Millisecond)
			p.Release(conn)
		}()

		require.NoError(t, p.Close(time.Second))
		assert.Equal(t, int64(1), destroyed.Load())
		assert.Equal(t, 0, p.Stats().ActiveConnections)
	})

	t.Run("leases still out at drain timeout are force-destroyed", func(t *testing.T) {
		t.Parallel()
		p, _, destroyed := newTestPool(t, Config{MaxConnections: 1}, nil)
		_, err := p.Acquire(context.Background())
		require.NoError(t, err)

		require.NoError(t, p.Close(10*time.Millisecond))
		assert.Equal(t, int64(1), destroyed.Load())
	})
}

func TestPoolWithConn(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPool(t, Config{MaxConnections: 1, AcquireTimeout: 100 * time.Millisecond}, nil)

	err := p.WithConn(context.Background(), func(*fakeConn) error {
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	// The lease was released despite the error.
	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(conn)

	// And released on panic too.
	func() {
		defer func() { _ = recover() }()
		_ = p.WithConn(context.Background(), func(*fakeConn) error { panic("boom") })
	}()
	conn, err = p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(conn)
}
