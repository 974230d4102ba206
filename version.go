// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rogue

import (
	"fmt"
	"strings"
)

// Release version of the rogue core.
const (
	Major = 2
	Minor = 4
	Maint = 0
)

// Version returns the current release version as a "M.m.p" string.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", Major, Minor, Maint)
}

// GreaterThanEqual reports whether the current version is greater than
// or equal to the "M.m.p" (or "vM.m.p") version string vers.
func GreaterThanEqual(vers string) (bool, error) {
	maj, min, mnt, err := parseVersion(vers)
	if err != nil {
		return false, err
	}
	switch {
	case Major != maj:
		return Major > maj, nil
	case Minor != min:
		return Minor > min, nil
	default:
		return Maint >= mnt, nil
	}
}

// LessThan reports whether the current version is less than the
// "M.m.p" (or "vM.m.p") version string vers.
func LessThan(vers string) (bool, error) {
	ge, err := GreaterThanEqual(vers)
	if err != nil {
		return false, err
	}
	return !ge, nil
}

// MinVersion returns an error if the current version is less than the
// "M.m.p" (or "vM.m.p") version string vers.
func MinVersion(vers string) error {
	ge, err := GreaterThanEqual(vers)
	if err != nil {
		return err
	}
	if !ge {
		return GeneralError("rogue.MinVersion", "version %s is less than required %s", Version(), vers)
	}
	return nil
}

func parseVersion(vers string) (maj, min, mnt uint32, err error) {
	v := strings.TrimPrefix(vers, "v")
	_, err = fmt.Sscanf(v, "%d.%d.%d", &maj, &min, &mnt)
	if err != nil {
		return 0, 0, 0, GeneralError("rogue.parseVersion", "invalid version string %q", vers)
	}
	return maj, min, mnt, nil
}
