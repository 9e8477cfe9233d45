package telemetry

import "log"

// Logf is the package-level diagnostic logger used by the dispatcher and
// the collaborator adapters. It defaults to log.Printf but may
// be replaced by SetLogger so tests can capture or silence it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
