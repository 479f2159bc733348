package connpool

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// Handle is a single lease on a pooled connection. It forwards every Conn
// method to the leased connection except Close, which hands the connection
// back to the pool. A Handle must not be used after Close.
type Handle struct {
	conn     Conn
	pool     *Pool
	id       uint64
	released atomic.Bool
}

// ID returns the lease number, unique within the pool that issued the handle.
func (h *Handle) ID() uint64 {
	return h.id
}

// Released reports whether Close has been called.
func (h *Handle) Released() bool {
	return h.released.Load()
}

func (h *Handle) checkActive() error {
	if h.pool == nil {
		return poolerrors.Wrap(ErrForeignHandle, poolerrors.ErrorTypeMisuse, "handle was not leased by a pool")
	}
	if h.released.Load() {
		return poolerrors.Wrap(ErrHandleReleased, poolerrors.ErrorTypeMisuse, "handle used after release").
			WithDetail("lease", h.id)
	}
	return nil
}

// ExecContext forwards to the leased connection.
func (h *Handle) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := h.checkActive(); err != nil {
		return nil, err
	}
	return h.conn.ExecContext(ctx, query, args...)
}

// QueryContext forwards to the leased connection.
func (h *Handle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := h.checkActive(); err != nil {
		return nil, err
	}
	return h.conn.QueryContext(ctx, query, args...)
}

// PrepareContext forwards to the leased connection.
func (h *Handle) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	if err := h.checkActive(); err != nil {
		return nil, err
	}
	return h.conn.PrepareContext(ctx, query)
}

// BeginTx forwards to the leased connection.
func (h *Handle) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if err := h.checkActive(); err != nil {
		return nil, err
	}
	return h.conn.BeginTx(ctx, opts)
}

// PingContext forwards to the leased connection.
func (h *Handle) PingContext(ctx context.Context) error {
	if err := h.checkActive(); err != nil {
		return err
	}
	return h.conn.PingContext(ctx)
}

// Close returns the connection to the pool. The underlying connection is not
// closed. A second Close returns an error wrapping ErrHandleReleased, and
// Close on a Handle that no pool issued returns one wrapping ErrForeignHandle.
func (h *Handle) Close() error {
	if h.pool == nil {
		return poolerrors.Wrap(ErrForeignHandle, poolerrors.ErrorTypeMisuse, "cannot release handle")
	}
	return h.pool.Release(h)
}
