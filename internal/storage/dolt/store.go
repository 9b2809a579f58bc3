// Package dolt implements the storage interface against a running Dolt
// sql-server (or any MySQL-compatible server) over the MySQL protocol.
//
// This is the shared-database mode: several devices on one network can point
// at the same server instead of keeping a local SQLite file each.
package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/storage/sqlstore"
)

// Config describes how to reach the server.
type Config struct {
	Host     string // default 127.0.0.1
	Port     int    // default 3307
	User     string // default root
	Password string
	Database string // default prio
	TLS      bool
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 3307
	}
	if c.User == "" {
		c.User = "root"
	}
	if c.Database == "" {
		c.Database = "prio"
	}
}

// Store implements storage.Store on a Dolt server.
type Store struct {
	*sqlstore.Queries

	db     *sql.DB
	addr   string
	closed atomic.Bool
}

var _ storage.Store = (*Store)(nil)

const serverRetryMaxElapsed = 30 * time.Second

func newServerRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = serverRetryMaxElapsed
	return bo
}

// New connects to the server, creates the database if needed and applies
// the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.Defaults()
	if err := validateDatabaseName(cfg.Database); err != nil {
		return nil, fmt.Errorf("invalid database name %q: %w", cfg.Database, err)
	}

	if err := ensureDatabase(ctx, cfg); err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", buildServerDSN(cfg, cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to open Dolt server connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	err = backoff.Retry(func() error {
		if err := db.PingContext(ctx); err != nil {
			if isRetryableError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(newServerRetryBackoff(), ctx))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to Dolt server at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	if err := sqlstore.ExecSchema(ctx, db, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{
		Queries: sqlstore.New(db),
		db:      db,
		addr:    fmt.Sprintf("%s@%s/%s", cfg.User, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), cfg.Database),
	}, nil
}

func ensureDatabase(ctx context.Context, cfg Config) error {
	initDB, err := sql.Open("mysql", buildServerDSN(cfg, ""))
	if err != nil {
		return fmt.Errorf("failed to open init connection: %w", err)
	}
	defer func() { _ = initDB.Close() }()

	_, err = initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database)) //nolint:gosec // validated by validateDatabaseName
	if err != nil {
		// Dolt may return 1007 even with IF NOT EXISTS.
		msg := strings.ToLower(err.Error())
		if !strings.Contains(msg, "database exists") && !strings.Contains(msg, "1007") {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}
	return nil
}

// buildServerDSN constructs a MySQL DSN. An empty database connects without
// selecting one (used to create it).
func buildServerDSN(cfg Config, database string) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = database
	// UpdateTask relies on matched rather than changed row counts.
	mc.ClientFoundRows = true
	if cfg.TLS {
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN()
}

var validDatabaseName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

func validateDatabaseName(name string) error {
	if !validDatabaseName.MatchString(name) {
		return fmt.Errorf("must match %s", validDatabaseName)
	}
	return nil
}

// isRetryableError returns true for transient connection errors.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused", // server restart
		"database is read only",
		"lost connection", // 2013
		"gone away",       // 2006
		"i/o timeout",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// Path returns user@host:port/database.
func (s *Store) Path() string {
	return s.addr
}
