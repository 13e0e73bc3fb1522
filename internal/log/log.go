// Package log is a small leveled logging shim used throughout the h2
// engine. It exists so call sites can write log.Debug/log.Error without
// every package constructing its own *log.Logger, and so verbosity can be
// toggled the same way the reference implementation toggles it: via the
// GODEBUG environment variable.
package log

import (
	"log"
	"os"
	"strings"
)

var (
	// Verbose mirrors GODEBUG=http2debug=1 (or 2): when true, Debug
	// messages are emitted instead of discarded.
	Verbose bool

	// Frames mirrors GODEBUG=http2debug=2: when true, every frame read
	// and written is logged individually. Frames implies Verbose.
	Frames bool
)

func init() {
	e := os.Getenv("GODEBUG")
	if strings.Contains(e, "http2debug=1") {
		Verbose = true
	}
	if strings.Contains(e, "http2debug=2") {
		Verbose = true
		Frames = true
	}
}

// Debug logs a formatted message only when Verbose is enabled.
func Debug(format string, args ...interface{}) {
	if Verbose {
		log.Printf("h2: "+format, args...)
	}
}

// Frame logs a formatted message only when Frames is enabled. Use for
// per-frame read/write tracing, which is noisier than Debug.
func Frame(format string, args ...interface{}) {
	if Frames {
		log.Printf("h2: "+format, args...)
	}
}

// Error always logs; reserved for conditions an operator should see
// regardless of GODEBUG, such as a connection being torn down by an
// unexpected internal error.
func Error(format string, args ...interface{}) {
	log.Printf("h2: "+format, args...)
}
