// Package debug provides an env-gated trace toggle consulted by internal/logging.
//
// It exists separately from internal/logging so packages deep in the
// runtime (the lockfile helpers, the raw transport) can check the gate
// without importing logrus.
package debug

import "os"

var enabled = os.Getenv("FLOCK_DEBUG") != ""

// Enabled reports whether FLOCK_DEBUG trace output is on.
func Enabled() bool {
	return enabled
}

// SetEnabled overrides the gate, mainly for tests.
func SetEnabled(v bool) {
	enabled = v
}
