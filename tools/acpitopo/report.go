package main

import (
	"acpitopo/device/acpi"
	"acpitopo/device/acpi/table"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Report is the document printed by the dump command.
type Report struct {
	Source   string           `yaml:"source"`
	MADT     MADTInfo         `yaml:"madt"`
	Tables   []acpi.TableInfo `yaml:"tables,omitempty"`
	Records  []RecordInfo     `yaml:"records"`
	Topology *acpi.Topology   `yaml:"topology"`

	// EnabledCPUs counts the processors usable at boot.
	EnabledCPUs int `yaml:"enabled_cpus"`

	// ISAIRQs routes each legacy ISA IRQ to its global system interrupt.
	ISAIRQs []IRQRoute `yaml:"isa_irqs"`

	Error string `yaml:"error,omitempty"`
}

// numISAIRQs is the number of interrupt lines of the legacy dual 8259 setup.
const numISAIRQs = 16

// IRQRoute maps an ISA IRQ to the GSI it is delivered on.
type IRQRoute struct {
	IRQ uint8  `yaml:"irq"`
	GSI uint32 `yaml:"gsi"`
}

// MADTInfo summarizes the MADT header.
type MADTInfo struct {
	Revision   uint8  `yaml:"revision"`
	Length     uint32 `yaml:"length"`
	OEMID      string `yaml:"oem_id"`
	OEMTableID string `yaml:"oem_table_id"`
	ChecksumOK bool   `yaml:"checksum_ok"`
}

// RecordInfo lists one MADT record in table order.
type RecordInfo struct {
	Type   string `yaml:"type"`
	Length uint8  `yaml:"length"`
}

func newReport(source string, madt table.MADT, tables []acpi.TableInfo, topo *acpi.Topology) *Report {
	rep := &Report{
		Source: source,
		MADT: MADTInfo{
			Revision:   madt.Revision(),
			Length:     madt.Length(),
			OEMID:      madt.OEMID(),
			OEMTableID: madt.OEMTableID(),
			ChecksumOK: madt.Valid(),
		},
		Tables:      tables,
		Topology:    topo,
		EnabledCPUs: topo.EnabledProcessors(),
	}

	for irq := uint8(0); irq < numISAIRQs; irq++ {
		rep.ISAIRQs = append(rep.ISAIRQs, IRQRoute{IRQ: irq, GSI: topo.GSIForIRQ(irq)})
	}

	it := madt.Entries()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		rep.Records = append(rep.Records, RecordInfo{Type: e.Type().String(), Length: e.Length()})
	}

	return rep
}

func writeYAML(w io.Writer, rep *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return err
	}
	return enc.Close()
}

// isTerminal returns true if w is a terminal. Column alignment is only
// applied for terminals; pipes get plain tab-separated lines.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func writeText(w io.Writer, rep *Report, aligned bool) error {
	out := w
	var tw *tabwriter.Writer
	if aligned {
		tw = tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		out = tw
	}

	topo := rep.Topology

	fmt.Fprintf(out, "source\t%s\n", rep.Source)
	fmt.Fprintf(out, "madt\trev %d\tlen %d\t%s %s\tchecksum %s\n",
		rep.MADT.Revision, rep.MADT.Length, printable(rep.MADT.OEMID), printable(rep.MADT.OEMTableID), okString(rep.MADT.ChecksumOK))
	fmt.Fprintf(out, "local controller\t0x%x\tpcat-compat %t\n", topo.LocalControllerAddress, topo.PCATCompat)

	for _, info := range rep.Tables {
		fmt.Fprintf(out, "table\t%s\t0x%x\tlen %d\trev %d\tchecksum %s\n",
			printable(info.Signature), info.Address, info.Length, info.Revision, okString(info.Valid))
	}

	for _, p := range topo.Processors {
		fmt.Fprintf(out, "cpu\t%s\tuid %d\tid 0x%x\tenabled %t\tonline-capable %t\n",
			p.Kind, p.UID, p.ID, p.Enabled, p.OnlineCapable)
	}

	fmt.Fprintf(out, "cpus\t%d\tenabled %d\n", len(topo.Processors), rep.EnabledCPUs)

	for _, ioapic := range topo.IOAPICs {
		fmt.Fprintf(out, "ioapic\tid %d\t0x%x\tgsi-base %d\n", ioapic.ID, ioapic.Address, ioapic.GSIBase)
	}

	for _, ovr := range topo.Overrides {
		fmt.Fprintf(out, "override\tbus %d irq %d\tgsi %d\t%s\t%s\n", ovr.Bus, ovr.IRQ, ovr.GSI, ovr.Polarity, ovr.Trigger)
	}

	// Identity mapped IRQs are omitted.
	for _, route := range rep.ISAIRQs {
		if route.GSI != uint32(route.IRQ) {
			fmt.Fprintf(out, "isa-irq\tirq %d\tgsi %d\n", route.IRQ, route.GSI)
		}
	}

	for _, nmi := range topo.NMISources {
		fmt.Fprintf(out, "nmi\tgsi %d\t%s\t%s\n", nmi.GSI, nmi.Polarity, nmi.Trigger)
	}

	for _, nmi := range topo.LocalNMIs {
		target := fmt.Sprintf("uid %d", nmi.ProcessorUID)
		if nmi.AllProcessors {
			target = "all"
		}
		fmt.Fprintf(out, "local-nmi\t%s\tlint%d\t%s\t%s\n", target, nmi.LINT, nmi.Polarity, nmi.Trigger)
	}

	for _, gicd := range topo.GICDistributors {
		fmt.Fprintf(out, "gicd\tid %d\t0x%x\tv%d\n", gicd.ID, gicd.Address, gicd.Version)
	}

	for _, gicr := range topo.GICRedistributors {
		fmt.Fprintf(out, "gicr\t0x%x\tlen 0x%x\n", gicr.Base, gicr.Length)
	}

	for _, its := range topo.GICITS {
		fmt.Fprintf(out, "gic-its\tid %d\t0x%x\n", its.ID, its.Address)
	}

	for _, msi := range topo.GICMSIFrames {
		fmt.Fprintf(out, "gic-msi\tid %d\t0x%x\n", msi.ID, msi.Address)
	}

	if topo.MPWakeup != nil {
		fmt.Fprintf(out, "mp-wakeup\tv%d\t0x%x\n", topo.MPWakeup.MailboxVersion, topo.MPWakeup.MailboxAddress)
	}

	fmt.Fprintf(out, "records\t%d\treserved %d\toem %d\n", topo.Records, topo.ReservedRecords, topo.OEMRecords)

	if rep.Error != "" {
		fmt.Fprintf(out, "error\t%s\n", rep.Error)
	}

	if tw != nil {
		return tw.Flush()
	}
	return nil
}

func okString(ok bool) string {
	if ok {
		return "ok"
	}
	return "BAD"
}

// printable strips escape sequences and masks control characters in strings
// read from firmware before they are written out.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '.'
		}
		return r
	}, ansi.Strip(s))
}
