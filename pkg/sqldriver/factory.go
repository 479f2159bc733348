// Package sqldriver opens pooled connections through database/sql drivers.
//
// The mysql, pgx and snowflake drivers are registered by importing this
// package. Any other driver registered with database/sql can be used as long
// as its credentials are embedded in the DSN, or an injector is installed
// with RegisterInjector.
package sqldriver

import (
	"context"
	"database/sql"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/dbpool/pkg/config"
	"github.com/ajitpratap0/dbpool/pkg/connpool"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// Params identifies the database and credentials a Factory connects with.
type Params struct {
	Driver   string
	DSN      string
	User     string
	Password string
	// MaxOpen bounds the physical connections the underlying sql.DB may
	// open. Zero means unlimited.
	MaxOpen int
}

// Factory opens one dedicated physical connection per Open call. Each
// connection is a *sql.Conn pinned out of a private sql.DB, so it stays open
// until it is closed explicitly.
type Factory struct {
	params Params
	logger *zap.Logger

	mu sync.Mutex
	db *sql.DB
}

// NewFactory creates a factory. Nothing is opened until Validate or Open.
func NewFactory(params Params, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		params: params,
		logger: logger.With(zap.String("component", "sqldriver"), zap.String("driver", params.Driver)),
	}
}

// Validate checks that the driver is registered with database/sql and that
// the DSN and credentials can be combined. It does not contact the server.
func (f *Factory) Validate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.database()
	return err
}

// Open pins a new physical connection.
func (f *Factory) Open(ctx context.Context) (connpool.Conn, error) {
	f.mu.Lock()
	db, err := f.database()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConnection, "failed to open connection").
			WithDetail("driver", f.params.Driver)
	}

	f.logger.Debug("opened connection")
	return conn, nil
}

// Close closes the underlying sql.DB. Connections already handed out are
// closed by database/sql once they are released back to it.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.db == nil {
		return nil
	}
	err := f.db.Close()
	f.db = nil
	return err
}

// database returns the lazily opened sql.DB. Must be called with f.mu held.
func (f *Factory) database() (*sql.DB, error) {
	if f.db != nil {
		return f.db, nil
	}

	if f.params.Driver == "" {
		return nil, poolerrors.New(poolerrors.ErrorTypeDriver, "driver name is required")
	}
	if !slices.Contains(sql.Drivers(), f.params.Driver) {
		return nil, poolerrors.New(poolerrors.ErrorTypeDriver, "driver cannot be found").
			WithDetail("driver", f.params.Driver).
			WithDetail("registered", sql.Drivers())
	}

	dsn, err := BuildDSN(f.params.Driver, f.params.DSN, f.params.User, f.params.Password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(f.params.Driver, dsn)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeDriver, "failed to initialize driver").
			WithDetail("driver", f.params.Driver)
	}
	if f.params.MaxOpen > 0 {
		db.SetMaxOpenConns(f.params.MaxOpen)
	}

	f.db = db
	return db, nil
}

// OpenPool builds a Factory from cfg and a pool of cfg.Capacity connections
// on top of it. The caller owns the returned factory and should Close it on
// shutdown.
func OpenPool(cfg config.PoolConfig, logger *zap.Logger) (*connpool.Pool, *Factory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := NewFactory(Params{
		Driver:   cfg.Driver,
		DSN:      cfg.DSN,
		User:     cfg.User,
		Password: cfg.Password,
		MaxOpen:  cfg.Capacity,
	}, logger)

	pool, err := connpool.New(factory, cfg.Capacity,
		connpool.WithLogger(logger.With(zap.String("pool", cfg.Name))))
	if err != nil {
		_ = factory.Close()
		return nil, nil, err
	}
	return pool, factory, nil
}
