//go:build linux && !appengine
// +build linux,!appengine

// Package internal holds low-level, platform-specific helpers shared by
// the backend adapters. None of it is part of the public API.
package internal

import (
	"github.com/syndtr/gocapability/capability"
)

// HasDACOverride reports whether the running process holds
// CAP_DAC_OVERRIDE in its effective set. The inotify backend calls it
// after a watch fails with EACCES, to log a louder diagnostic when the
// process holds the capability; the result does not change whether the
// permission error is suppressed.
func HasDACOverride() (bool, error) {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return false, err
	}
	if err := caps.Load(); err != nil {
		return false, err
	}
	return caps.Get(capability.EFFECTIVE, capability.CAP_DAC_OVERRIDE), nil
}
