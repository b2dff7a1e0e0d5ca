package main

import (
	"acpitopo/device/acpi/table"
	"acpitopo/device/acpi/table/tablegen"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const testConfig = `
acpi_revision: 2
cpus: 4
pcat_compat: true
ioapic:
  id: 8
  gsi_base: 0
isa_overrides:
  - irq: 0
    gsi: 2
  - irq: 9
    gsi: 9
    flags: 0xd
lint1_nmi: true
extra_records:
  - type: 0x40
    payload: "0102"
oem_id: TESTOE
`

func synthImage(t *testing.T, config string) string {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "image.yaml")
	if err := os.WriteFile(cfgPath, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}

	imgPath := filepath.Join(dir, "acpi.img")
	if err := run([]string{"synth", "-config", cfgPath, "-o", imgPath}, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	return imgPath
}

func TestSynthAndDumpYAML(t *testing.T) {
	imgPath := synthImage(t, testConfig)

	var out bytes.Buffer
	if err := run([]string{"-source", "image", "-image", imgPath, "-format", "yaml"}, &out); err != nil {
		t.Fatal(err)
	}

	var rep struct {
		MADT struct {
			OEMID      string `yaml:"oem_id"`
			ChecksumOK bool   `yaml:"checksum_ok"`
		} `yaml:"madt"`
		Tables []struct {
			Signature string `yaml:"signature"`
		} `yaml:"tables"`
		Records  []RecordInfo `yaml:"records"`
		Topology struct {
			PCATCompat bool `yaml:"pcat_compat"`
			Processors []struct {
				Kind string `yaml:"kind"`
				ID   uint64 `yaml:"id"`
			} `yaml:"processors"`
			IOAPICs []struct {
				ID uint8 `yaml:"id"`
			} `yaml:"ioapics"`
			Overrides []struct {
				IRQ      uint8  `yaml:"irq"`
				GSI      uint32 `yaml:"gsi"`
				Polarity string `yaml:"polarity"`
				Trigger  string `yaml:"trigger"`
			} `yaml:"overrides"`
			ReservedRecords int `yaml:"reserved_records"`
		} `yaml:"topology"`
		EnabledCPUs int        `yaml:"enabled_cpus"`
		ISAIRQs     []IRQRoute `yaml:"isa_irqs"`
	}

	if err := yaml.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("could not parse report: %v\n%s", err, out.String())
	}

	if exp, got := "TESTOE", rep.MADT.OEMID; got != exp || !rep.MADT.ChecksumOK {
		t.Errorf("expected valid MADT from OEM %q; got %q (checksum ok: %t)", exp, got, rep.MADT.ChecksumOK)
	}

	if exp, got := 3, len(rep.Tables); got != exp {
		t.Errorf("expected %d tables; got %d", exp, got)
	}

	if exp, got := 4, len(rep.Topology.Processors); got != exp {
		t.Fatalf("expected %d processors; got %d", exp, got)
	}

	if !rep.Topology.PCATCompat {
		t.Error("expected PCAT compat flag")
	}

	if len(rep.Topology.IOAPICs) != 1 || rep.Topology.IOAPICs[0].ID != 8 {
		t.Errorf("expected a single I/O APIC with ID 8; got %+v", rep.Topology.IOAPICs)
	}

	if len(rep.Topology.Overrides) != 2 || rep.Topology.Overrides[1].Polarity != "active-high" || rep.Topology.Overrides[1].Trigger != "level" {
		t.Errorf("expected IRQ9 override to be active-high/level; got %+v", rep.Topology.Overrides)
	}

	if exp, got := 4, rep.EnabledCPUs; got != exp {
		t.Errorf("expected %d enabled CPUs; got %d", exp, got)
	}

	if exp, got := numISAIRQs, len(rep.ISAIRQs); got != exp {
		t.Fatalf("expected %d ISA IRQ routes; got %d", exp, got)
	}

	for irq, exp := range map[uint8]uint32{0: 2, 1: 1, 9: 9, 15: 15} {
		if got := rep.ISAIRQs[irq]; got.IRQ != irq || got.GSI != exp {
			t.Errorf("expected ISA IRQ %d to route to GSI %d; got %+v", irq, exp, got)
		}
	}

	if exp, got := 1, rep.Topology.ReservedRecords; got != exp {
		t.Errorf("expected %d reserved records; got %d", exp, got)
	}

	// 4 CPUs, 1 I/O APIC, 2 overrides, 1 NMI and 1 extra record.
	if exp, got := 9, len(rep.Records); got != exp {
		t.Fatalf("expected %d records; got %d", exp, got)
	}

	if exp, got := "Reserved (0x40)", rep.Records[8].Type; got != exp {
		t.Errorf("expected last record type %q; got %q", exp, got)
	}
}

func TestDumpText(t *testing.T) {
	imgPath := synthImage(t, "cpus: 2\nacpi_revision: 0\n")

	var out bytes.Buffer
	if err := run([]string{"dump", "-source", "image", "-image", imgPath}, &out); err != nil {
		t.Fatal(err)
	}

	for _, exp := range []string{
		"source\timage\n",
		"cpu\tlapic\tuid 1\tid 0x1\tenabled true",
		"cpus\t2\tenabled 2\n",
		"ioapic\tid 0\t0xfec00000\tgsi-base 0\n",
		"table\tAPIC\t",
		"records\t3\treserved 0\toem 0\n",
	} {
		if !strings.Contains(out.String(), exp) {
			t.Errorf("expected output to contain %q; got:\n%s", exp, out.String())
		}
	}

	if strings.Contains(out.String(), "isa-irq") {
		t.Errorf("expected identity mapped ISA IRQs to be omitted; got:\n%s", out.String())
	}
}

func TestDumpTextISARoutes(t *testing.T) {
	imgPath := synthImage(t, testConfig)

	var out bytes.Buffer
	if err := run([]string{"-source", "image", "-image", imgPath}, &out); err != nil {
		t.Fatal(err)
	}

	if exp := "isa-irq\tirq 0\tgsi 2\n"; !strings.Contains(out.String(), exp) {
		t.Errorf("expected output to contain %q; got:\n%s", exp, out.String())
	}

	if strings.Contains(out.String(), "isa-irq\tirq 9\t") {
		t.Errorf("expected identity mapped IRQ 9 to be omitted; got:\n%s", out.String())
	}

	if exp := "cpus\t4\tenabled 4\n"; !strings.Contains(out.String(), exp) {
		t.Errorf("expected output to contain %q; got:\n%s", exp, out.String())
	}
}

func TestDumpSysfs(t *testing.T) {
	dir := t.TempDir()
	body := tablegen.NewMADT(0xfee00000, 0).LocalX2APIC(7, 1, 0).Bytes()
	madt := tablegen.Table(table.SignatureMADT, 5, body)
	if err := os.WriteFile(filepath.Join(dir, "APIC"), madt, 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run([]string{"-sysfs-dir", dir}, &out); err != nil {
		t.Fatal(err)
	}

	if exp := "cpu\tx2apic\tuid 0\tid 0x7"; !strings.Contains(out.String(), exp) {
		t.Fatalf("expected output to contain %q; got:\n%s", exp, out.String())
	}

	t.Run("checksum mismatch", func(t *testing.T) {
		madt[24] ^= 0xff
		if err := os.WriteFile(filepath.Join(dir, "APIC"), madt, 0o600); err != nil {
			t.Fatal(err)
		}

		if err := run([]string{"-sysfs-dir", dir}, &bytes.Buffer{}); err == nil {
			t.Fatal("expected dump to reject a MADT with a bad checksum")
		}

		out.Reset()
		if err := run([]string{"-sysfs-dir", dir, "-keep-invalid"}, &out); err != nil {
			t.Fatal(err)
		}

		if !strings.Contains(out.String(), "checksum BAD") {
			t.Fatalf("expected the checksum mismatch to be reported; got:\n%s", out.String())
		}
	})
}

func TestDumpMalformedMADT(t *testing.T) {
	dir := t.TempDir()
	body := tablegen.NewMADT(0xfee00000, 0).
		LocalAPIC(0, 0, 1).
		RecordWithLength(1, 1, nil).
		Bytes()
	if err := os.WriteFile(filepath.Join(dir, "APIC"), tablegen.Table(table.SignatureMADT, 5, body), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run([]string{"-sysfs-dir", dir}, &out); err == nil {
		t.Fatal("expected dump to report the malformed record")
	}

	if !strings.Contains(out.String(), "cpu\tlapic") || !strings.Contains(out.String(), "error\t") {
		t.Fatalf("expected partial topology and error in output; got:\n%s", out.String())
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	badCfg := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(badCfg, []byte("cpus: 2\nbogus_key: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	badHex := filepath.Join(dir, "badhex.yaml")
	if err := os.WriteFile(badHex, []byte("extra_records:\n  - type: 0x80\n    payload: zz\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	specs := [][]string{
		{"frobnicate"},
		{"-format", "xml"},
		{"-source", "floppy"},
		{"-source", "image"},
		{"-source", "image", "-image", filepath.Join(dir, "missing.img")},
		{"-sysfs-dir", filepath.Join(dir, "missing")},
		{"-sysfs-dir", dir},
		{"synth", "-config", badCfg, "-o", filepath.Join(dir, "out.img")},
		{"synth", "-config", badHex, "-o", filepath.Join(dir, "out.img")},
		{"synth", "-config", filepath.Join(dir, "missing.yaml")},
	}

	for specIndex, args := range specs {
		if err := run(args, &bytes.Buffer{}); err == nil {
			t.Errorf("[spec %d] expected run(%v) to fail", specIndex, args)
		}
	}
}

func TestDumpImageWithoutACPI(t *testing.T) {
	imgPath := filepath.Join(t.TempDir(), "empty.img")
	if err := os.WriteFile(imgPath, make([]byte, 0x100000), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := run([]string{"-source", "image", "-image", imgPath}, &bytes.Buffer{}); err != errNoACPI {
		t.Fatalf("expected error %v; got %v", errNoACPI, err)
	}
}

func TestLineLogger(t *testing.T) {
	var l lineLogger
	l.Write([]byte("[hal] ACPI(0.1.0): "))
	l.Write([]byte("APIC at 0x1\npartial"))

	if exp, got := "partial", string(l.buf); got != exp {
		t.Fatalf("expected buffered %q; got %q", exp, got)
	}
}

func TestPrintable(t *testing.T) {
	specs := []struct {
		in, exp string
	}{
		{"BOCHS ", "BOCHS "},
		{"\x1b[31mEVIL\x1b[0m", "EVIL"},
	}

	for specIndex, spec := range specs {
		if got := printable(spec.in); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}
