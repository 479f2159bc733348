package connpool

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	errStubQuery   = errors.New("stub: query not supported")
	errStubPrepare = errors.New("stub: prepare not supported")
	errStubBegin   = errors.New("stub: transactions not supported")
)

// stubResult is the sql.Result returned by stubConn.ExecContext.
type stubResult struct {
	lastID   int64
	affected int64
}

func (r stubResult) LastInsertId() (int64, error) { return r.lastID, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.affected, nil }

// stubConn records how it is used so tests can tell forwarded calls from
// intercepted ones.
type stubConn struct {
	id      int
	pingErr error

	execs  atomic.Int64
	pings  atomic.Int64
	closed atomic.Bool
}

func (c *stubConn) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	c.execs.Add(1)
	return stubResult{lastID: int64(c.id), affected: int64(len(args))}, nil
}

func (c *stubConn) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errStubQuery
}

func (c *stubConn) PrepareContext(context.Context, string) (*sql.Stmt, error) {
	return nil, errStubPrepare
}

func (c *stubConn) BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error) {
	return nil, errStubBegin
}

func (c *stubConn) PingContext(context.Context) error {
	c.pings.Add(1)
	return c.pingErr
}

func (c *stubConn) Close() error {
	c.closed.Store(true)
	return nil
}

// stubFactory opens stubConns and counts them.
type stubFactory struct {
	validateErr error

	mu      sync.Mutex
	openErr error
	opened  []*stubConn
}

func (f *stubFactory) Validate() error {
	return f.validateErr
}

func (f *stubFactory) Open(context.Context) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.openErr != nil {
		return nil, f.openErr
	}
	c := &stubConn{id: len(f.opened) + 1}
	f.opened = append(f.opened, c)
	return c, nil
}

func (f *stubFactory) setOpenErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}

func (f *stubFactory) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}
