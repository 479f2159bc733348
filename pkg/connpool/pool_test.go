package connpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
	"github.com/ajitpratap0/dbpool/pkg/testutil"
)

func newTestPool(t *testing.T, capacity int) (*Pool, *stubFactory) {
	t.Helper()
	factory := &stubFactory{}
	p, err := New(factory, capacity, WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)
	return p, factory
}

func TestPool_NewRejectsInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		p, err := New(&stubFactory{}, capacity)
		require.Error(t, err)
		assert.Nil(t, p)
		assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
	}
}

func TestPool_NewRejectsNilFactory(t *testing.T) {
	_, err := New(nil, 1)
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
}

func TestPool_NewFailsFastOnUnavailableFactory(t *testing.T) {
	missing := errors.New("driver not registered")
	factory := &stubFactory{validateErr: missing}

	p, err := New(factory, 2, WithLogger(testutil.TestLogger(t)))
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeDriver))
	assert.True(t, poolerrors.IsFatal(err))
	assert.ErrorIs(t, err, missing)
	assert.Zero(t, factory.openCount())
}

func TestPool_NewDoesNotOpenConnections(t *testing.T) {
	p, factory := newTestPool(t, 3)

	assert.Zero(t, factory.openCount())
	assert.Equal(t, Stats{Capacity: 3}, p.Stats())
	assert.Equal(t, 3, p.Capacity())
}

func TestPool_AcquireCreatesLazily(t *testing.T) {
	p, factory := newTestPool(t, 3)

	h1, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, factory.openCount())

	h2, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, factory.openCount())
	assert.NotSame(t, h1.conn, h2.conn)

	stats := p.Stats()
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 2, stats.Leased)
	assert.Equal(t, 0, stats.Idle)
}

func TestPool_ReleaseThenAcquireReusesConnection(t *testing.T) {
	p, factory := newTestPool(t, 1)

	first, err := p.Acquire()
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := p.Acquire()
	require.NoError(t, err)

	assert.Same(t, first.conn, second.conn)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 1, factory.openCount())
	assert.Equal(t, 1, p.Stats().Created)
}

func TestPool_FullCycleDoesNotLeak(t *testing.T) {
	const capacity = 4
	p, factory := newTestPool(t, capacity)

	for round := 0; round < 3; round++ {
		handles := make([]*Handle, 0, capacity)
		for i := 0; i < capacity; i++ {
			h, err := p.Acquire()
			require.NoError(t, err)
			handles = append(handles, h)
		}
		assert.Equal(t, Stats{Capacity: capacity, Created: capacity, Leased: capacity}, p.Stats())

		for _, h := range handles {
			require.NoError(t, h.Close())
		}
		assert.Equal(t, Stats{Capacity: capacity, Created: capacity, Idle: capacity}, p.Stats())
	}

	assert.Equal(t, capacity, factory.openCount())
}

func TestPool_ThirdAcquireBlocksUntilRelease(t *testing.T) {
	p, factory := newTestPool(t, 2)

	h1, err := p.Acquire()
	require.NoError(t, err)
	h2, err := p.Acquire()
	require.NoError(t, err)

	got := make(chan *Handle, 1)
	go func() {
		h, err := p.Acquire()
		if err != nil {
			close(got)
			return
		}
		got <- h
	}()

	testutil.AssertEventually(t, func() bool { return p.Stats().Waiting == 1 },
		time.Second, "third acquire never started waiting")
	testutil.AssertNever(t, func() bool { return len(got) > 0 },
		50*time.Millisecond, "third acquire did not block")

	require.NoError(t, h1.Close())

	var h3 *Handle
	select {
	case h3 = <-got:
	case <-time.After(time.Second):
		t.Fatal("third acquire did not unblock after release")
	}
	require.NotNil(t, h3)

	assert.Same(t, h1.conn, h3.conn)
	assert.Equal(t, 2, factory.openCount())
	assert.Equal(t, Stats{Capacity: 2, Created: 2, Leased: 2}, p.Stats())

	require.NoError(t, h2.Close())
	require.NoError(t, h3.Close())
}

func TestPool_ConcurrentLeasesNeverExceedCapacity(t *testing.T) {
	const (
		capacity   = 3
		workers    = 16
		iterations = 50
	)
	p, factory := newTestPool(t, capacity)

	var (
		current atomic.Int64
		peak    atomic.Int64
		wg      sync.WaitGroup
		failed  atomic.Int64
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				h, err := p.Acquire()
				if err != nil {
					failed.Add(1)
					return
				}
				n := current.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				current.Add(-1)
				if err := h.Close(); err != nil {
					failed.Add(1)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failed.Load())
	assert.LessOrEqual(t, peak.Load(), int64(capacity))
	assert.LessOrEqual(t, factory.openCount(), capacity)

	stats := p.Stats()
	assert.LessOrEqual(t, stats.Created, capacity)
	assert.Equal(t, stats.Created, stats.Idle)
	assert.Zero(t, stats.Leased)
	assert.Zero(t, stats.Waiting)
}

func TestPool_CreationFailureConsumesPermit(t *testing.T) {
	p, factory := newTestPool(t, 2)
	refused := errors.New("connection refused")
	factory.setOpenErr(refused)

	h, err := p.Acquire()
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeCreation))
	assert.False(t, poolerrors.IsFatal(err))
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, Stats{Capacity: 2, Created: 1, Failed: 1}, p.Stats())

	// one slot is gone for good, so only one lease fits now
	factory.setOpenErr(nil)
	h1, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, Stats{Capacity: 2, Created: 2, Leased: 1, Failed: 1}, p.Stats())
	assert.False(t, p.permits.TryAcquire(1))

	got := make(chan *Handle, 1)
	go func() {
		h, err := p.Acquire()
		if err != nil {
			close(got)
			return
		}
		got <- h
	}()

	testutil.AssertEventually(t, func() bool { return p.Stats().Waiting == 1 },
		time.Second, "acquire never started waiting")
	testutil.AssertNever(t, func() bool { return len(got) > 0 },
		50*time.Millisecond, "acquire did not block on the consumed permit")

	require.NoError(t, h1.Close())

	var h2 *Handle
	select {
	case h2 = <-got:
	case <-time.After(time.Second):
		t.Fatal("acquire did not unblock after release")
	}
	require.NotNil(t, h2)
	assert.Same(t, h1.conn, h2.conn)
	assert.Equal(t, 1, factory.openCount())
	require.NoError(t, h2.Close())
}

func TestPool_ExhaustedByFailedCreations(t *testing.T) {
	p, factory := newTestPool(t, 1)
	factory.setOpenErr(errors.New("connection refused"))

	_, err := p.Acquire()
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeCreation))

	// the only permit was consumed; later callers fail instead of hanging
	factory.setOpenErr(nil)
	done := make(chan error, 1)
	go func() {
		_, err := p.Acquire()
		done <- err
	}()

	select {
	case err = <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire on an exhausted pool blocked")
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeState))
	assert.True(t, poolerrors.IsFatal(err))
	assert.Zero(t, factory.openCount())
	assert.Equal(t, Stats{Capacity: 1, Created: 1, Failed: 1}, p.Stats())
}

func TestPool_IdleStoreDesyncIsStateError(t *testing.T) {
	p, _ := newTestPool(t, 1)

	// every connection counted as created but none idle or leased
	p.mu.Lock()
	p.created = p.capacity
	p.mu.Unlock()

	h, err := p.Acquire()
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeState))
	assert.True(t, poolerrors.IsFatal(err))
}

func TestPool_DoubleReleaseIsRejected(t *testing.T) {
	p, _ := newTestPool(t, 2)

	h, err := p.Acquire()
	require.NoError(t, err)
	require.NoError(t, h.Close())

	err = h.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandleReleased)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeMisuse))

	err = p.Release(h)
	assert.ErrorIs(t, err, ErrHandleReleased)

	assert.Equal(t, Stats{Capacity: 2, Created: 1, Idle: 1}, p.Stats())
}

func TestPool_ForeignHandleIsRejected(t *testing.T) {
	a, _ := newTestPool(t, 1)
	b, _ := newTestPool(t, 1)

	h, err := a.Acquire()
	require.NoError(t, err)

	err = b.Release(h)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForeignHandle)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeMisuse))
	assert.False(t, h.Released())
	assert.Equal(t, Stats{Capacity: 1}, b.Stats())

	assert.ErrorIs(t, a.Release(nil), ErrForeignHandle)

	require.NoError(t, h.Close())
	assert.Equal(t, Stats{Capacity: 1, Created: 1, Idle: 1}, a.Stats())
}
