package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// Config describes one ClickHouse server.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	// UseHTTP talks to the HTTP interface (8123) instead of native (9000).
	UseHTTP bool
	// AsyncInsert lets the server buffer small inserts; WaitForAsync makes
	// the insert return only after the buffer is flushed.
	AsyncInsert  bool
	WaitForAsync bool
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	MaxExecTime  time.Duration
	MaxOpenConns int
}

// Client is a database/sql pool on the ClickHouse driver.
type Client struct {
	db *sql.DB
}

// NewClient opens the pool and pings the server.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("clickhouse host is required")
	}
	db := ch.OpenDB(cfg.options())
	open := cfg.MaxOpenConns
	if open <= 0 {
		open = 10
	}
	db.SetMaxOpenConns(open)
	db.SetMaxIdleConns(open / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.dialTimeout())
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{db: db}, nil
}

func (cfg Config) dialTimeout() time.Duration {
	if cfg.DialTimeout > 0 {
		return cfg.DialTimeout
	}
	return 5 * time.Second
}

func (cfg Config) options() *ch.Options {
	port := cfg.Port
	if port == 0 {
		port = 9000
		if cfg.UseHTTP {
			port = 8123
		}
	}
	db := cfg.Database
	if db == "" {
		db = "default"
	}
	opts := &ch.Options{
		Addr:        []string{net.JoinHostPort(cfg.Host, strconv.Itoa(port))},
		Auth:        ch.Auth{Database: db, Username: cfg.User, Password: cfg.Password},
		Protocol:    ch.Native,
		DialTimeout: cfg.dialTimeout(),
		ReadTimeout: cfg.ReadTimeout,
		Settings:    cfg.settings(),
	}
	if cfg.UseHTTP {
		opts.Protocol = ch.HTTP
	}
	return opts
}

func (cfg Config) settings() ch.Settings {
	s := ch.Settings{}
	if cfg.MaxExecTime > 0 {
		s["max_execution_time"] = int(cfg.MaxExecTime.Seconds())
	}
	if cfg.AsyncInsert {
		s["async_insert"] = 1
		if cfg.WaitForAsync {
			s["wait_for_async_insert"] = 1
		}
	}
	return s
}

// DB exposes the pool for queries.
func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Close() error { return c.db.Close() }

// Exec runs DDL statements in order and stops at the first failure.
func (c *Client) Exec(ctx context.Context, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %.40q: %w", stmt, err)
		}
	}
	return nil
}

// InsertBatch appends rows through one prepared INSERT inside a
// transaction. The driver sends them as a single block.
func (c *Client) InsertBatch(ctx context.Context, query string, rows [][]any) (err error) {
	if len(rows) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()
	for _, row := range rows {
		if _, err = stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("append batch row: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
