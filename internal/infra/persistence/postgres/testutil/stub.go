// Package testutil provides a scripted stub database for postgres store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var stubSeq atomic.Int64

// StubConn records statements issued by the postgres store and replays canned
// results. Queries are matched against registered fragments in order.
type StubConn struct {
	mu sync.Mutex

	Execs     []string
	ExecArgs  [][]driver.Value
	Queries   []string
	QueryArgs [][]driver.Value

	FailPing   bool
	FailBegin  bool
	FailCommit bool
	// ExecErr and QueryErr are returned verbatim, which lets tests inject
	// *pgconn.PgError values.
	ExecErr  error
	QueryErr error
	// FailExecOn fails any exec whose text contains the fragment.
	FailExecOn   string
	RowsAffected int64

	Committed  int
	RolledBack int

	results []cannedResult
}

type cannedResult struct {
	fragment string
	cols     []string
	rows     [][]driver.Value
}

// NewStubDB registers a sql.DB backed by a fresh stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{RowsAffected: 1}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// On registers rows returned for any query containing fragment.
func (c *StubConn) On(fragment string, cols []string, rows ...[]driver.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, cannedResult{fragment: fragment, cols: cols, rows: rows})
}

// ExecCount reports how many executed statements contain fragment.
func (c *StubConn) ExecCount(fragment string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, q := range c.Execs {
		if strings.Contains(q, fragment) {
			n++
		}
	}
	return n
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
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	c.ExecArgs = append(c.ExecArgs, values(args))
	if c.ExecErr != nil {
		return nil, c.ExecErr
	}
	if c.FailExecOn != "" && strings.Contains(query, c.FailExecOn) {
		return nil, fmt.Errorf("exec fail")
	}
	return driver.RowsAffected(c.RowsAffected), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, query)
	c.QueryArgs = append(c.QueryArgs, values(args))
	if c.QueryErr != nil {
		return nil, c.QueryErr
	}
	for _, res := range c.results {
		if strings.Contains(query, res.fragment) {
			return &stubRows{cols: res.cols, rows: res.rows}, nil
		}
	}
	return &stubRows{}, nil
}

func values(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	t.conn.Committed++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.RolledBack++
	return nil
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
