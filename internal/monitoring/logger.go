// Package monitoring holds the diagnostic logger shared by the link packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// is read when a framer or mux is constructed, so SetLogger must be called
// before the link is built for the change to take effect.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that writes through the current Logf with the
// given prefix prepended to every message.
func Prefixed(prefix string) func(format string, v ...interface{}) {
	logf := Logf
	return func(format string, v ...interface{}) {
		logf(prefix+format, v...)
	}
}
