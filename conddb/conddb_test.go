// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import (
	"context"
	"database/sql/driver"
	"reflect"
	"testing"

	"github.com/go-daq/rogue/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()
}

func TestAdapterConfig(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Data{
		Adapters: fakedb.Rows{
			Names: []string{
				"identifier", "name", "path", "dest",
				"timeout_us", "zero_copy", "ssi", "bufpool", "bufsize",
			},
			Values: [][]driver.Value{
				{int32(3), "pgp-lane0", "/dev/pgpcard_0", uint32(0x20), uint32(1000000), true, true, uint32(128), uint32(2048)},
			},
		},
	}, func(ctx context.Context) error {
		cfg, err := db.AdapterConfig(ctx, "pgp-lane0")
		if err != nil {
			t.Fatalf("could not retrieve adapter cfg: %+v", err)
		}

		want := AdapterConfig{
			ID:        3,
			Name:      "pgp-lane0",
			Path:      "/dev/pgpcard_0",
			Dest:      0x20,
			TimeoutUS: 1000000,
			ZeroCopy:  true,
			SSI:       true,
			BufPool:   128,
			BufSize:   2048,
		}
		if got := cfg; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid adapter cfg:\ngot= %#v\nwant=%#v", got, want)
		}
		return nil
	})
}

func TestRegisterWindows(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Data{
		Windows: fakedb.Rows{
			Names: []string{"base", "size"},
			Values: [][]driver.Value{
				{uint64(0x40010000), uint32(0x1000)},
				{uint64(0x40020000), uint32(0x2000)},
			},
		},
	}, func(ctx context.Context) error {
		wins, err := db.RegisterWindows(ctx, "rce-0")
		if err != nil {
			t.Fatalf("could not retrieve register windows: %+v", err)
		}

		want := []Window{
			{Base: 0x40010000, Size: 0x1000},
			{Base: 0x40020000, Size: 0x2000},
		}
		if got := wins; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid register windows:\ngot= %#v\nwant=%#v", got, want)
		}
		return nil
	})
}

func TestLastRunID(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Data{
		Runs: fakedb.Rows{
			Names: []string{"identifier"},
			Values: [][]driver.Value{
				{uint32(42)},
			},
		},
	}, func(ctx context.Context) error {
		run, err := db.LastRunID(ctx)
		if err != nil {
			t.Fatalf("could not retrieve run-id: %+v", err)
		}
		if got, want := run, uint32(42); got != want {
			t.Fatalf("invalid run-id: got=%d, want=%d", got, want)
		}
		return nil
	})
}

func TestNewRunID(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Data{
		NextRun: 43,
	}, func(ctx context.Context) error {
		for _, want := range []uint32{43, 44} {
			run, err := db.NewRunID(ctx)
			if err != nil {
				t.Fatalf("could not book new run: %+v", err)
			}
			if got := run; got != want {
				t.Fatalf("invalid new run-id: got=%d, want=%d", got, want)
			}
		}
		return nil
	})
}
