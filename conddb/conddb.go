// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the conditions and
// configuration database of a rogue-based acquisition system: DMA
// adapter settings, register windows and run bookkeeping.
package conddb // import "github.com/go-daq/rogue/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// AdapterConfig describes one DMA adapter endpoint.
type AdapterConfig struct {
	ID        int32  `json:"identifier"`
	Name      string `json:"name"`
	Path      string `json:"path"`    // device node of the driver
	Dest      uint32 `json:"dest"`    // destination/channel selector
	TimeoutUS uint32 `json:"timeout"` // device wait bound, microseconds
	ZeroCopy  bool   `json:"zcopy"`   // zero-copy paths enabled
	SSI       bool   `json:"ssi"`     // SSI first-/last-user framing
	BufPool   uint32 `json:"bufpool"` // fixed-size recycling depth
	BufSize   uint32 `json:"bufsize"` // fixed buffer size in bytes
}

// Window describes one physical register window.
type Window struct {
	Base uint64 `json:"base"`
	Size uint32 `json:"size"`
}

// DB exposes convenience methods to retrieve conditions and
// configuration data from the acquisition database.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the acquisition database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// AdapterConfig retrieves the configuration record of the DMA adapter
// named name.
func (db *DB) AdapterConfig(ctx context.Context, name string) (AdapterConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var cfg AdapterConfig
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT identifier, name, path, dest, timeout_us, zero_copy, ssi, bufpool, bufsize
FROM adapters WHERE name=? ORDER BY datetime DESC LIMIT 1
`,
		name,
	)
	if err != nil {
		return cfg, fmt.Errorf("conddb: could not run adapter cfg query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Path, &cfg.Dest,
			&cfg.TimeoutUS, &cfg.ZeroCopy, &cfg.SSI,
			&cfg.BufPool, &cfg.BufSize,
		)
		if err != nil {
			return cfg, fmt.Errorf("conddb: could not get adapter cfg value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: could not scan db for adapter cfg: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: context error while retrieving adapter cfg: %w", err)
	}

	return cfg, nil
}

// RegisterWindows retrieves the register windows of the board named
// board, ordered by base address.
func (db *DB) RegisterWindows(ctx context.Context, board string) ([]Window, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var wins []Window
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT windows.base, windows.size FROM windows
JOIN boards ON boards.identifier=windows.board
WHERE boards.name=?
ORDER BY windows.base ASC
`,
		board,
	)
	if err != nil {
		return wins, fmt.Errorf("conddb: could not run register-window query: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var win Window
		err = rows.Scan(&win.Base, &win.Size)
		if err != nil {
			return wins, fmt.Errorf("conddb: could not scan row %d for register window: %w", i, err)
		}
		i++
		wins = append(wins, win)
	}

	if err := rows.Err(); err != nil {
		return wins, fmt.Errorf("conddb: could not scan db for register windows: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return wins, fmt.Errorf("conddb: context error while retrieving register windows: %w", err)
	}

	return wins, nil
}

// LastRunID retrieves the identifier of the most recent run.
func (db *DB) LastRunID(ctx context.Context) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var run uint32
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT identifier FROM runs ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return run, fmt.Errorf("conddb: could not query run-id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&run)
		if err != nil {
			return run, fmt.Errorf("conddb: could not get run-id value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return run, fmt.Errorf("conddb: could not scan db for run-id: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return run, fmt.Errorf("conddb: context error while retrieving run-id: %w", err)
	}

	return run, nil
}

// NewRunID books a new run and returns its identifier.
func (db *DB) NewRunID(ctx context.Context) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := db.db.ExecContext(
		ctx,
		"INSERT INTO runs (datetime) VALUES (NOW())",
	)
	if err != nil {
		return 0, fmt.Errorf("conddb: could not book new run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("conddb: could not get new run-id value: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("conddb: context error while booking new run: %w", err)
	}

	return uint32(id), nil
}
