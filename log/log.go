// Package log is a minimal wrapper around an io.Writer: no levels, no
// structured fields, just the lines the orchestrator wants a human to see.
package log

import (
	"fmt"
	"io"
)

// Logger writes progress and warning lines for a single command invocation.
type Logger struct {
	io.Writer
}

// New returns a Logger that writes to w.
func New(w io.Writer) *Logger {
	return &Logger{Writer: w}
}

// Logln logs a line.
func (l *Logger) Logln(args ...interface{}) {
	fmt.Fprintln(l, args...)
}

// Logf logs a formatted line (caller supplies the trailing newline).
func (l *Logger) Logf(format string, args ...interface{}) {
	fmt.Fprintf(l, format, args...)
}

// Warnf logs a formatted warning line, prefixed with "warning: ".
func (l *Logger) Warnf(format string, args ...interface{}) {
	fmt.Fprintf(l, "warning: "+format+"\n", args...)
}

// Pkgf logs a formatted line scoped to a single package in an install plan,
// prefixed with the package identity.
func (l *Logger) Pkgf(pkg, format string, args ...interface{}) {
	fmt.Fprintf(l, "%s: "+format+"\n", append([]interface{}{pkg}, args...)...)
}
