package connpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

var (
	// ErrHandleReleased is returned when a handle is used or released after
	// its lease has ended.
	ErrHandleReleased = errors.New("handle already released")
	// ErrForeignHandle is returned when a handle is released to a pool that
	// did not lease it.
	ErrForeignHandle = errors.New("handle does not belong to this pool")
	// ErrPoolExhausted is returned by Acquire once every connection slot has
	// been consumed by a failed creation and no lease can ever be granted.
	ErrPoolExhausted = errors.New("every connection slot was lost to failed creations")
)

// Pool is a bounded pool of lazily created connections.
type Pool struct {
	factory  Factory
	capacity int
	logger   *zap.Logger

	// permits blocks callers once capacity connections are leased. A failed
	// creation keeps its permit, so the pool shrinks by one slot for good.
	permits *semaphore.Weighted
	waiting atomic.Int64

	// exhausted is cancelled when failed reaches capacity
	exhausted context.Context
	exhaust   context.CancelFunc

	mu      sync.Mutex
	idle    *queue.Queue // of Conn
	created int
	failed  int
	leased  map[*Handle]struct{}
	leases  uint64
}

// Stats is a point-in-time snapshot of the pool's bookkeeping. Created counts
// every creation attempt, so Created == Idle + Leased + Failed.
type Stats struct {
	Capacity int   `json:"capacity"`
	Created  int   `json:"created"`
	Idle     int   `json:"idle"`
	Leased   int   `json:"leased"`
	Failed   int   `json:"failed"`
	Waiting  int64 `json:"waiting"`
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for lease events and failures.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pool that leases at most capacity connections opened by
// factory. The factory is validated immediately; no connection is opened
// until the first Acquire.
func New(factory Factory, capacity int, opts ...Option) (*Pool, error) {
	if factory == nil {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig, "connection factory is required")
	}
	if capacity <= 0 {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig, "capacity must be positive").
			WithDetail("capacity", capacity)
	}

	p := &Pool{
		factory:  factory,
		capacity: capacity,
		logger:   zap.NewNop(),
		permits:  semaphore.NewWeighted(int64(capacity)),
		idle:     queue.New(),
		leased:   make(map[*Handle]struct{}, capacity),
	}
	p.exhausted, p.exhaust = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "connpool"))

	if err := factory.Validate(); err != nil {
		p.exhaust()
		p.logger.Error("connection factory unavailable", zap.Error(err))
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeDriver, "connection factory is unavailable")
	}

	return p, nil
}

// Capacity returns the maximum number of concurrently leased connections.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Acquire leases a connection, blocking until one is available. It opens a
// new connection while fewer than Capacity creation attempts have been made
// and reuses an idle one otherwise. There is no timeout: a caller waits until
// a lease is released, or until the pool is exhausted by failed creations.
func (p *Pool) Acquire() (*Handle, error) {
	p.waiting.Add(1)
	err := p.permits.Acquire(p.exhausted, 1)
	p.waiting.Add(-1)
	if err != nil {
		return nil, poolerrors.Wrap(ErrPoolExhausted, poolerrors.ErrorTypeState, "no connection can be leased").
			WithDetail("capacity", p.capacity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.created < p.capacity {
		return p.create()
	}

	if p.idle.Length() == 0 {
		p.permits.Release(1)
		err := poolerrors.New(poolerrors.ErrorTypeState, "permit granted but idle store is empty").
			WithDetail("created", p.created).
			WithDetail("leased", len(p.leased)).
			WithDetail("capacity", p.capacity)
		p.logger.Error("pool state corrupted",
			zap.Int("created", p.created),
			zap.Int("leased", len(p.leased)))
		return nil, err
	}

	conn := p.idle.Remove().(Conn)
	h := p.lease(conn)

	p.logger.Debug("reusing connection",
		zap.Uint64("lease", h.id),
		zap.Int("idle", p.idle.Length()))

	return h, nil
}

// create opens a new connection. Must be called with p.mu held and a permit
// acquired. The slot is counted before the factory is called and neither the
// slot nor the permit is given back on failure.
func (p *Pool) create() (*Handle, error) {
	p.created++
	conn, err := p.factory.Open(context.Background())
	if err == nil && conn == nil {
		err = errors.New("factory returned a nil connection")
	}
	if err != nil {
		p.failed++
		wrapped := poolerrors.Wrap(err, poolerrors.ErrorTypeCreation, "failed to open connection").
			WithDetail("created", p.created).
			WithDetail("failed", p.failed).
			WithDetail("capacity", p.capacity)
		p.logger.Error("failed to open connection",
			zap.Int("created", p.created),
			zap.Int("failed", p.failed),
			zap.Error(err))
		if p.failed == p.capacity {
			p.logger.Error("pool exhausted by failed creations", zap.Int("capacity", p.capacity))
			p.exhaust()
		}
		return nil, wrapped
	}

	h := p.lease(conn)

	p.logger.Debug("created new connection",
		zap.Uint64("lease", h.id),
		zap.Int("created", p.created),
		zap.Int("capacity", p.capacity))

	return h, nil
}

// lease binds conn to a new handle. Must be called with p.mu held.
func (p *Pool) lease(conn Conn) *Handle {
	p.leases++
	h := &Handle{conn: conn, pool: p, id: p.leases}
	p.leased[h] = struct{}{}
	return h
}

// Release returns the handle's connection to the idle store and frees one
// permit. Releasing a handle twice, or a handle leased by another pool, is
// rejected with an ErrorTypeMisuse error and leaves the pool untouched.
func (p *Pool) Release(h *Handle) error {
	if h == nil || h.pool != p {
		p.logger.Warn("rejected release of foreign handle")
		return poolerrors.Wrap(ErrForeignHandle, poolerrors.ErrorTypeMisuse, "cannot release handle")
	}
	if !h.released.CompareAndSwap(false, true) {
		p.logger.Warn("rejected double release", zap.Uint64("lease", h.id))
		return poolerrors.Wrap(ErrHandleReleased, poolerrors.ErrorTypeMisuse, "cannot release handle").
			WithDetail("lease", h.id)
	}

	p.mu.Lock()
	if _, ok := p.leased[h]; !ok {
		p.mu.Unlock()
		p.logger.Error("pool state corrupted: released handle was not leased", zap.Uint64("lease", h.id))
		return poolerrors.New(poolerrors.ErrorTypeState, "released handle is not an outstanding lease").
			WithDetail("lease", h.id)
	}
	delete(p.leased, h)
	p.idle.Add(h.conn)
	idle := p.idle.Length()
	p.mu.Unlock()

	p.permits.Release(1)

	p.logger.Debug("returned connection to pool",
		zap.Uint64("lease", h.id),
		zap.Int("idle", idle))

	return nil
}

// Stats returns a snapshot of the pool's bookkeeping.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Capacity: p.capacity,
		Created:  p.created,
		Idle:     p.idle.Length(),
		Leased:   len(p.leased),
		Failed:   p.failed,
		Waiting:  p.waiting.Load(),
	}
}
