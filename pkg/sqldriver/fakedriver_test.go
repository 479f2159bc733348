package sqldriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"sync/atomic"
)

const fakeDriverName = "sqldriver-fake"

var fake = &fakeDriver{}

func init() {
	sql.Register(fakeDriverName, fake)
}

// fakeDriver is a database/sql driver that records opened connections.
type fakeDriver struct {
	mu    sync.Mutex
	conns []*fakeConn
	dsns  []string
	fail  error
}

func (d *fakeDriver) Open(name string) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fail != nil {
		return nil, d.fail
	}
	c := &fakeConn{id: len(d.conns) + 1}
	d.conns = append(d.conns, c)
	d.dsns = append(d.dsns, name)
	return c, nil
}

func (d *fakeDriver) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = nil
	d.dsns = nil
	d.fail = nil
}

func (d *fakeDriver) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

func (d *fakeDriver) opened() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

func (d *fakeDriver) lastDSN() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dsns) == 0 {
		return ""
	}
	return d.dsns[len(d.dsns)-1]
}

// fakeConn supports ExecContext and Ping; everything else fails.
type fakeConn struct {
	id     int
	execs  atomic.Int64
	closed atomic.Bool
}

type fakeResult struct {
	connID int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.connID, nil }
func (r fakeResult) RowsAffected() (int64, error) { return 1, nil }

func (c *fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("fake: prepare not supported")
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("fake: transactions not supported")
}

func (c *fakeConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	c.execs.Add(1)
	return fakeResult{connID: int64(c.id)}, nil
}

func (c *fakeConn) Ping(context.Context) error {
	return nil
}

var (
	_ driver.ExecerContext = (*fakeConn)(nil)
	_ driver.Pinger        = (*fakeConn)(nil)
)
