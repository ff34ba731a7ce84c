//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package logger

// isTerminal disables colors on platforms without a termios probe.
func isTerminal(uintptr) bool {
	return false
}
