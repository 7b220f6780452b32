// Package testutil provides a stub database/sql driver for postgres store tests.
// It understands the handful of statements the collection store issues.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// StubCollection is one row of the stubbed collections table.
type StubCollection struct {
	Payload []byte
	Version int64
}

// StubConn records executed statements and holds collection rows in memory.
type StubConn struct {
	mu          sync.Mutex
	Execs       []string
	Collections map[string]StubCollection
	FailPing    bool
	FailExec    bool
	FailQuery   bool
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Collections: make(map[string]StubCollection)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Set stores a collection row directly, bypassing the store.
func (c *StubConn) Set(name string, payload []byte, version int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Collections[name] = StubCollection{Payload: payload, Version: version}
}

// Get returns a collection row.
func (c *StubConn) Get(name string) (StubCollection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.Collections[name]
	return row, ok
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) { return nil, fmt.Errorf("transactions not supported") }

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	switch verb(query) {
	case "CREATE":
		return driver.RowsAffected(0), nil
	case "INSERT":
		if len(args) != 2 {
			return nil, fmt.Errorf("insert expects 2 args, got %d", len(args))
		}
		name := args[0].Value.(string)
		if _, ok := c.Collections[name]; ok {
			return driver.RowsAffected(0), nil
		}
		c.Collections[name] = StubCollection{Payload: bytesOf(args[1].Value), Version: 0}
		return driver.RowsAffected(1), nil
	case "UPDATE":
		if len(args) != 3 {
			return nil, fmt.Errorf("update expects 3 args, got %d", len(args))
		}
		name := args[1].Value.(string)
		expected := args[2].Value.(int64)
		row, ok := c.Collections[name]
		if !ok || row.Version != expected {
			return driver.RowsAffected(0), nil
		}
		c.Collections[name] = StubCollection{Payload: bytesOf(args[0].Value), Version: row.Version + 1}
		return driver.RowsAffected(1), nil
	default:
		return nil, fmt.Errorf("unsupported statement: %s", query)
	}
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	if verb(query) != "SELECT" || len(args) != 1 {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	cols := selectColumns(query)
	row, ok := c.Collections[args[0].Value.(string)]
	rows := &stubRows{cols: cols}
	if !ok {
		return rows, nil
	}
	vals := make([]driver.Value, len(cols))
	for i, col := range cols {
		switch col {
		case "payload":
			vals[i] = row.Payload
		case "version":
			vals[i] = row.Version
		default:
			return nil, fmt.Errorf("unknown column %s", col)
		}
	}
	rows.rows = [][]driver.Value{vals}
	return rows, nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func verb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func selectColumns(query string) []string {
	lower := strings.ToLower(query)
	fromIdx := strings.Index(lower, " from ")
	if fromIdx == -1 {
		return nil
	}
	parts := strings.Split(query[len("select "):fromIdx], ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}

func bytesOf(v driver.Value) []byte {
	switch b := v.(type) {
	case []byte:
		cp := make([]byte, len(b))
		copy(cp, b)
		return cp
	case string:
		return []byte(b)
	default:
		return nil
	}
}
