// Package kfmt provides the formatted output primitives used by drivers. All
// driver output is sent to an io.Writer supplied by the caller; output
// produced before a sink is configured is kept in a ring buffer and replayed
// once SetOutputSink is called.
package kfmt

import (
	"fmt"
	"io"
)

var (
	// earlyPrintBuffer captures Printf output while no sink is set.
	earlyPrintBuffer ringBuffer

	// outputSink is where Printf sends its output. When nil, output is
	// redirected to earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and flushes
// any data accumulated in the early print buffer into it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// Printf formats according to a format specifier and writes to the active
// output sink.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes the formatted output to w. A nil w
// selects the early print buffer. Write errors are dropped; log output must
// never abort table parsing.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		w = &earlyPrintBuffer
	}

	fmt.Fprintf(w, format, args...)
}

// GetOutputSink returns the default target for calls to Printf. While no
// sink is set it returns the early print buffer.
func GetOutputSink() io.Writer {
	if outputSink == nil {
		return &earlyPrintBuffer
	}
	return outputSink
}
