package main

import (
	"acpitopo/device/acpi"
	"acpitopo/device/acpi/physmem"
	"acpitopo/device/acpi/table"
	"acpitopo/kernel/hal"
	"acpitopo/kernel/kfmt"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
)

var errNoACPI = errors.New("ACPI driver did not initialize")

type dumpOptions struct {
	source      string
	sysfsDir    string
	image       string
	base        uint64
	rsdp        uint64
	format      string
	keepInvalid bool
}

// tableSource is a table resolver that can also describe every table it
// knows about.
type tableSource interface {
	table.Resolver
	Tables() []acpi.TableInfo
}

func runDump(args []string, stdout io.Writer) error {
	var opts dumpOptions

	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.StringVar(&opts.source, "source", "sysfs", "table source: sysfs, devmem or image")
	fs.StringVar(&opts.sysfsDir, "sysfs-dir", acpi.SysfsTablesDir, "directory holding the tables exported by linux")
	fs.StringVar(&opts.image, "image", "", "physical memory image to read (source=image)")
	fs.Uint64Var(&opts.base, "base", 0, "physical address of the first byte of the image")
	fs.Uint64Var(&opts.rsdp, "rsdp", 0, "physical address of the RSDP; 0 scans the BIOS area")
	fs.StringVar(&opts.format, "format", "text", "output format: text or yaml")
	fs.BoolVar(&opts.keepInvalid, "keep-invalid", false, "use tables that fail checksum verification")
	verbose := fs.Bool("v", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*verbose)

	if opts.format != "text" && opts.format != "yaml" {
		return fmt.Errorf("unsupported output format %q", opts.format)
	}

	src, closeFn, err := openSource(opts)
	if err != nil {
		return err
	}
	defer closeFn()

	madt, ok := table.LookupMADT(src)
	if !ok {
		return errors.New("no MADT found")
	}

	if !opts.keepInvalid {
		if kerr := madt.Verify(); kerr != nil {
			return fmt.Errorf("MADT: %w", kerr)
		}
	}

	topo, kerr := acpi.BuildTopology(madt)
	if kerr != nil {
		slog.Warn("MADT record sequence is malformed", "err", kerr, "records", topo.Records)
	}

	rep := newReport(opts.source, madt, src.Tables(), topo)
	if kerr != nil {
		rep.Error = kerr.Error()
	}

	if opts.format == "yaml" {
		err = writeYAML(stdout, rep)
	} else {
		err = writeText(stdout, rep, isTerminal(stdout))
	}

	if err != nil {
		return err
	}

	if kerr != nil {
		return fmt.Errorf("MADT: %w", kerr)
	}
	return nil
}

// openSource returns the table source selected by opts and a function that
// releases it.
func openSource(opts dumpOptions) (tableSource, func(), error) {
	nop := func() {}

	switch opts.source {
	case "sysfs":
		r, err := acpi.NewSysfsResolver(opts.sysfsDir)
		if err != nil {
			return nil, nop, err
		}
		return r, nop, nil
	case "devmem":
		dm, kerr := physmem.OpenDevMem("")
		if kerr != nil {
			return nil, nop, kerr
		}

		rsdp := uintptr(opts.rsdp)
		if rsdp == 0 {
			if addr, err := acpi.RSDPFromEFISystab(""); err == nil {
				rsdp = addr
			} else {
				slog.Debug("EFI system table unavailable; scanning BIOS area", "err", err)
			}
		}

		src, err := probeACPI(dm, rsdp, opts.keepInvalid)
		if err != nil {
			dm.Close()
			return nil, nop, err
		}
		return src, func() { dm.Close() }, nil
	case "image":
		if opts.image == "" {
			return nil, nop, errors.New("-image is required with -source image")
		}

		data, err := os.ReadFile(opts.image)
		if err != nil {
			return nil, nop, err
		}

		src, err := probeACPI(physmem.NewImage(uintptr(opts.base), data), uintptr(opts.rsdp), opts.keepInvalid)
		if err != nil {
			return nil, nop, err
		}
		return src, nop, nil
	default:
		return nil, nop, fmt.Errorf("unknown table source %q", opts.source)
	}
}

// probeACPI runs hardware detection against m and returns the ACPI driver.
func probeACPI(m physmem.Mapper, rsdp uintptr, keepInvalid bool) (tableSource, error) {
	acpi.SetPhysicalMemory(m)
	acpi.SetRSDPAddress(rsdp)
	acpi.SetKeepInvalidTables(keepInvalid)
	kfmt.SetOutputSink(&lineLogger{})

	hal.DetectHardware()

	src, ok := hal.TableResolver().(tableSource)
	if !ok {
		return nil, errNoACPI
	}
	return src, nil
}
