package db

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// loggingConnector opens sqlite3 connections that log each statement at debug
// level.
type loggingConnector struct {
	dsn    string
	logger *slog.Logger
	driver sqlite3.SQLiteDriver
}

// loggingConn logs on the conn-level exec and query paths, which database/sql
// takes for every statement the store issues.
type loggingConn struct {
	*sqlite3.SQLiteConn
	logger *slog.Logger
}

// NewLoggingConnector returns a driver.Connector for sql.OpenDB. If logger is
// nil, slog.Default() is used.
func NewLoggingConnector(dsn string, logger *slog.Logger) (driver.Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingConnector{dsn: dsn, logger: logger}, nil
}

func (c *loggingConnector) Driver() driver.Driver {
	return &c.driver
}

func (c *loggingConnector) Connect(_ context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &loggingConn{SQLiteConn: conn.(*sqlite3.SQLiteConn), logger: c.logger}, nil
}

func (c *loggingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.log("exec", query, args)
	return c.SQLiteConn.ExecContext(ctx, query, args)
}

func (c *loggingConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.log("query", query, args)
	return c.SQLiteConn.QueryContext(ctx, query, args)
}

func (c *loggingConn) log(op, query string, args []driver.NamedValue) {
	out := make([]string, len(args))
	for i, a := range args {
		v := "NULL"
		switch t := a.Value.(type) {
		case nil:
		case []byte:
			v = string(t)
		default:
			v = fmt.Sprint(t)
		}
		if a.Name != "" {
			v = a.Name + "=" + v
		}
		out[i] = v
	}
	c.logger.Debug("sql", "op", op, "sql", query, "args", out)
}
