package sqldriver

import (
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/snowflakedb/gosnowflake"

	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// CredentialInjector merges a user and password into a driver-specific DSN
// and returns the DSN to hand to sql.Open.
type CredentialInjector func(dsn, user, password string) (string, error)

var (
	injectorsMu sync.RWMutex
	injectors   = map[string]CredentialInjector{
		"mysql":     injectMySQL,
		"pgx":       injectPgx,
		"snowflake": injectSnowflake,
	}
)

// RegisterInjector installs the credential injector for a driver name,
// replacing any existing one.
func RegisterInjector(driverName string, fn CredentialInjector) {
	injectorsMu.Lock()
	defer injectorsMu.Unlock()
	injectors[driverName] = fn
}

// BuildDSN returns the DSN used to open connections for driverName. With no
// user or password the DSN is returned unchanged. Otherwise the driver must
// have a registered injector.
func BuildDSN(driverName, dsn, user, password string) (string, error) {
	if user == "" && password == "" {
		return dsn, nil
	}

	injectorsMu.RLock()
	inject, ok := injectors[driverName]
	injectorsMu.RUnlock()
	if !ok {
		return "", poolerrors.New(poolerrors.ErrorTypeConfig, "driver does not support separate credentials").
			WithDetail("driver", driverName)
	}

	out, err := inject(dsn, user, password)
	if err != nil {
		return "", poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "invalid dsn").
			WithDetail("driver", driverName)
	}
	return out, nil
}

func injectMySQL(dsn, user, password string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	if user != "" {
		cfg.User = user
	}
	cfg.Passwd = password
	return cfg.FormatDSN(), nil
}

func pgxConnConfig(dsn, user, password string) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if user != "" {
		cfg.User = user
	}
	cfg.Password = password
	return cfg, nil
}

// injectPgx registers the parsed config with the pgx stdlib driver, which
// hands back an opaque name to use as the DSN.
func injectPgx(dsn, user, password string) (string, error) {
	cfg, err := pgxConnConfig(dsn, user, password)
	if err != nil {
		return "", err
	}
	return stdlib.RegisterConnConfig(cfg), nil
}

func injectSnowflake(dsn, user, password string) (string, error) {
	cfg, err := gosnowflake.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	if user != "" {
		cfg.User = user
	}
	cfg.Password = password
	return gosnowflake.DSN(cfg)
}
