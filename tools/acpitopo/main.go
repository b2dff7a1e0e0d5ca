// Command acpitopo locates the ACPI tables of a machine (or of a memory
// image) and prints the interrupt controller topology described by the MADT.
//
// Usage:
//
//	acpitopo [dump] [-source sysfs|devmem|image] [-format text|yaml] ...
//	acpitopo synth -config image.yaml -o acpi.img
package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[acpitopo] error: %s\n", err.Error())
	os.Exit(1)
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		exit(err)
	}
}

// run dispatches to the requested command. dump is assumed when the first
// argument is a flag or missing.
func run(args []string, stdout io.Writer) error {
	cmd := "dump"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "dump":
		return runDump(args, stdout)
	case "synth":
		return runSynth(args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// lineLogger forwards complete lines written by the kernel-side code to slog.
type lineLogger struct {
	buf []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		idx := bytes.IndexByte(l.buf, '\n')
		if idx < 0 {
			break
		}

		slog.Debug(string(l.buf[:idx]))
		l.buf = l.buf[idx+1:]
	}
	return len(p), nil
}
