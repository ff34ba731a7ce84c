//go:build !linux && !darwin && !freebsd

package adapter

import "syscall"

const reusePortSupported = false

func reusePortControl(_, _ string, _ syscall.RawConn) error { return nil }
