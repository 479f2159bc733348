package connpool

import (
	"context"
	"database/sql"
)

// Conn is the capability surface of a pooled connection. *sql.Conn satisfies
// it, and so does *Handle.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
}

// Factory opens live connections for a Pool.
type Factory interface {
	// Validate reports whether the factory can produce connections at all.
	// It is called once, when the pool is constructed, and must not open a
	// connection.
	Validate() error
	// Open creates one new live connection.
	Open(ctx context.Context) (Conn, error)
}

var (
	_ Conn = (*sql.Conn)(nil)
	_ Conn = (*Handle)(nil)
)
