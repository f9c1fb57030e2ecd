// Package db opens the gorm connection shared by every repository.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// sqlitePragmas are appended to SQLite DSNs that carry no query string.
const sqlitePragmas = "_busy_timeout=5000"

type Client struct {
	conn   *gorm.DB
	driver string
}

// Pinger is the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the configured driver. Postgres serves production; SQLite is for
// local runs.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("database DSN is required")
	}
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", driverName(cfg.Driver), err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	configurePool(sqlDB, cfg)

	if logg != nil {
		logg.Info(logg.WithField(ctx, "db_driver", driverName(cfg.Driver)), "database connection established")
	}
	return &Client{conn: conn, driver: driverName(cfg.Driver)}, nil
}

// NewFromConn wraps an open connection, inferring the driver from its dialect.
func NewFromConn(conn *gorm.DB) *Client {
	driver := config.DBDriverPostgres
	if conn != nil && conn.Dialector != nil && conn.Dialector.Name() == "sqlite" {
		driver = config.DBDriverSQLite
	}
	return &Client{conn: conn, driver: driver}
}

func driverName(driver string) string {
	if driver == "" {
		return config.DBDriverPostgres
	}
	return driver
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch driverName(cfg.Driver) {
	case config.DBDriverPostgres:
		return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), nil
	case config.DBDriverSQLite:
		return sqlite.Open(sqliteDSN(cfg.DSN)), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

// sqliteDSN adds a busy timeout unless the DSN already sets its own options.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + "?" + sqlitePragmas
}

// configurePool pins SQLite to a single connection; it serialises writers anyway.
func configurePool(sqlDB *sql.DB, cfg config.DBConfig) {
	if cfg.Driver == config.DBDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Driver() string {
	return c.driver
}

// SQL exposes the pooled *sql.DB for the migration runner.
func (c *Client) SQL() (*sql.DB, error) {
	return c.conn.DB()
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction bound to ctx. An error or panic from fn
// rolls back; a panic is re-raised after the rollback.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
