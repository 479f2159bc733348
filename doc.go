// Package dbpool provides a bounded pool of database connections in front of
// any database/sql driver.
//
// A pool is configured with a driver name, a target DSN, optional credentials
// and a capacity. Connections are opened lazily on demand and at most
// capacity of them ever exist. Callers lease a connection with Acquire and
// receive a handle that behaves like a connection; closing the handle returns
// the underlying connection to the pool instead of disconnecting it. When
// every connection is leased, Acquire blocks until one is returned.
//
// # Quick Start
//
//	import (
//	    "github.com/ajitpratap0/dbpool/pkg/config"
//	    "github.com/ajitpratap0/dbpool/pkg/sqldriver"
//	)
//
//	pool, factory, err := sqldriver.OpenPool(config.PoolConfig{
//	    Name:     "primary",
//	    Driver:   "pgx",
//	    DSN:      "postgres://localhost:5432/app",
//	    User:     "app",
//	    Password: os.Getenv("DB_PASSWORD"),
//	    Capacity: 8,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer factory.Close()
//
//	h, err := pool.Acquire()
//	if err != nil {
//	    return err
//	}
//	defer h.Close() // returns the connection to the pool
//
//	_, err = h.ExecContext(ctx, "UPDATE jobs SET state = 'done' WHERE id = $1", id)
//
// # Key Packages
//
//	pkg/connpool    - Pool controller and lease handles
//	pkg/sqldriver   - database/sql connection factory and credential injection
//	pkg/poolerrors  - Structured error types
//	pkg/config      - YAML configuration
//	pkg/logger      - Structured logging with zap
//
// # Command Line
//
//	dbpool drivers
//	dbpool check --driver mysql --dsn "tcp(localhost:3306)/app" --user app
//	dbpool exec --config dbpool.yaml --query "SELECT 1" --workers 16 --iterations 1000
//
// Every flag can also be set through a DBPOOL_ environment variable, for
// example DBPOOL_PASSWORD or DBPOOL_LOG_LEVEL. A .env file in the working
// directory is loaded on startup.
package dbpool
