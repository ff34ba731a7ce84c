//go:build !unix

package filexfer

import "os"

// Advisory locks are not available; transfers are unsynchronised.

func lockShared(*os.File) error       { return nil }
func tryLockExclusive(*os.File) error { return nil }
func unlock(*os.File) error           { return nil }
