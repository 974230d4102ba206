// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb provides an in-memory database/sql driver faking the
// acquisition conditions database: canned rows for the adapters,
// windows and runs tables, and auto-incremented run identifiers for
// inserts into runs.
package fakedb // import "github.com/go-daq/rogue/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Rows is one canned result set.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

// Data is the faked content of the conditions database.
type Data struct {
	Adapters Rows  // rows served for queries on the adapters table
	Windows  Rows  // rows served for queries on the windows table
	Runs     Rows  // rows served for queries on the runs table
	NextRun  int64 // identifier handed out by the next insert into runs
}

var state struct {
	mu   sync.Mutex
	data Data
}

// Run installs data as the faked database content for the duration of f.
func Run(ctx context.Context, data Data, f func(ctx context.Context) error) error {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.data = data

	return f(ctx)
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

// Open returns a new connection to the database.
// The name is a string in a driver-specific format.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{query: query}, nil
}

// Close marks this connection as no longer in use.
func (c *Conn) Close() error {
	return nil
}

// Begin starts and returns a new transaction.
//
// Deprecated: Drivers should implement ConnBeginTx instead (or additionally).
func (c *Conn) Begin() (driver.Tx, error) {
	panic("not implemented")
}

type Stmt struct {
	query string
}

// Close closes the statement.
func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns the number of placeholder parameters.
// -1 disables the argument-count sanity check of database/sql.
func (stmt *Stmt) NumInput() int {
	return -1
}

// table resolves the conditions table addressed by the statement.
func (stmt *Stmt) table() (string, error) {
	for _, name := range []string{"adapters", "windows", "runs"} {
		if strings.Contains(stmt.query, "FROM "+name) ||
			strings.Contains(stmt.query, "INTO "+name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("fakedb: no conditions table in query %q", stmt.query)
}

// Exec executes a statement that does not return rows. Inserts into
// the runs table hand out the next run identifier.
//
// Deprecated: Drivers should implement StmtExecContext instead (or additionally).
func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	name, err := stmt.table()
	if err != nil {
		return nil, err
	}
	if name != "runs" {
		return nil, fmt.Errorf("fakedb: table %q is read-only", name)
	}

	id := state.data.NextRun
	state.data.NextRun++
	return &result{lastID: id}, nil
}

// Query executes a statement that may return rows, serving the canned
// rows of the addressed conditions table.
//
// Deprecated: Drivers should implement StmtQueryContext instead (or additionally).
func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	name, err := stmt.table()
	if err != nil {
		return nil, err
	}

	var rows Rows
	switch name {
	case "adapters":
		rows = state.data.Adapters
	case "windows":
		rows = state.data.Windows
	case "runs":
		rows = state.data.Runs
	}

	// each query gets its own cursor over the canned values.
	return &cursor{
		names:  rows.Names,
		values: append([][]driver.Value(nil), rows.Values...),
	}, nil
}

type result struct {
	lastID int64
}

// LastInsertId returns the identifier handed out by the insert.
func (res *result) LastInsertId() (int64, error) {
	return res.lastID, nil
}

// RowsAffected returns the number of rows affected by the statement.
func (res *result) RowsAffected() (int64, error) {
	return 1, nil
}

type cursor struct {
	names  []string
	values [][]driver.Value
}

// Columns returns the names of the columns.
func (cur *cursor) Columns() []string {
	return cur.names
}

// Close closes the rows iterator.
func (cur *cursor) Close() error {
	return nil
}

// Next populates the next row of data into dest.
// It returns io.EOF when the canned values are exhausted.
func (cur *cursor) Next(dest []driver.Value) error {
	if len(cur.values) == 0 {
		return io.EOF
	}
	copy(dest, cur.values[0])
	cur.values = cur.values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Result = (*result)(nil)
	_ driver.Rows   = (*cursor)(nil)
)
