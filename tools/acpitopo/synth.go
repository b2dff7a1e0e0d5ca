package main

import (
	"acpitopo/device/acpi/table/tablegen"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

func runSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML description of the image; defaults are used when empty")
	out := fs.String("o", "acpi.img", "output image file")
	verbose := fs.Bool("v", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*verbose)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	img, err := tablegen.BuildImage(cfg)
	if err != nil {
		return err
	}

	if err = os.WriteFile(*out, img.Data, 0o644); err != nil {
		return err
	}

	slog.Info("wrote ACPI image",
		"path", *out,
		"base", fmt.Sprintf("0x%x", img.Base),
		"size", len(img.Data),
		"rsdp", fmt.Sprintf("0x%x", img.RSDPAddr),
		"madt", fmt.Sprintf("0x%x", img.MADTAddr),
	)
	return nil
}

// loadConfig decodes the image description at path. Unknown keys are
// rejected so that typos do not silently fall back to defaults.
func loadConfig(path string) (tablegen.Config, error) {
	var cfg tablegen.Config
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err = dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}

	slog.Debug("loaded image config", "path", path, "cpus", cfg.NumCPUs, "acpi_revision", cfg.ACPIRevision)
	return cfg, nil
}
