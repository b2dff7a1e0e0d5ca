package acpi

import (
	"acpitopo/device/acpi/table"
	"acpitopo/kernel"
)

// Processor kinds reported in Topology.Processors.
const (
	ProcessorLocalAPIC  = "lapic"
	ProcessorLocalSAPIC = "lsapic"
	ProcessorX2APIC     = "x2apic"
	ProcessorGICC       = "gicc"
)

// Processor describes a logical processor declared by the MADT.
type Processor struct {
	Kind string `yaml:"kind"`

	// UID is the ACPI processor UID; ID is the interrupt controller ID
	// (APIC ID, x2APIC ID, SAPIC ID or MPIDR depending on Kind).
	UID uint32 `yaml:"uid"`
	ID  uint64 `yaml:"id"`

	Enabled       bool `yaml:"enabled"`
	OnlineCapable bool `yaml:"online_capable"`
}

// IOAPIC describes an I/O APIC or I/O SAPIC.
type IOAPIC struct {
	ID      uint8  `yaml:"id"`
	Address uint64 `yaml:"address"`
	GSIBase uint32 `yaml:"gsi_base"`
	SAPIC   bool   `yaml:"sapic,omitempty"`
}

// InterruptOverride maps a bus-relative interrupt source to a GSI.
type InterruptOverride struct {
	Bus      uint8  `yaml:"bus"`
	IRQ      uint8  `yaml:"irq"`
	GSI      uint32 `yaml:"gsi"`
	Polarity string `yaml:"polarity"`
	Trigger  string `yaml:"trigger"`
}

// NMISource is a GSI wired as a non-maskable interrupt.
type NMISource struct {
	GSI      uint32 `yaml:"gsi"`
	Polarity string `yaml:"polarity"`
	Trigger  string `yaml:"trigger"`
}

// LocalNMI describes the local interrupt pin that delivers NMIs to one or all
// processors.
type LocalNMI struct {
	ProcessorUID  uint32 `yaml:"processor_uid"`
	AllProcessors bool   `yaml:"all_processors"`
	LINT          uint8  `yaml:"lint"`
	Polarity      string `yaml:"polarity"`
	Trigger       string `yaml:"trigger"`
}

// GICComponent describes a GIC distributor, MSI frame or ITS.
type GICComponent struct {
	ID      uint32 `yaml:"id"`
	Address uint64 `yaml:"address"`
	Version uint8  `yaml:"version,omitempty"`
}

// GICRedistributorRange is a GIC redistributor discovery range.
type GICRedistributorRange struct {
	Base   uint64 `yaml:"base"`
	Length uint32 `yaml:"length"`
}

// MPWakeup describes the multiprocessor wakeup mailbox.
type MPWakeup struct {
	MailboxVersion uint16 `yaml:"mailbox_version"`
	MailboxAddress uint64 `yaml:"mailbox_address"`
	ResetVector    uint64 `yaml:"reset_vector,omitempty"`
}

// Topology is the interrupt controller layout described by a MADT. Records
// are kept in table order; duplicates are not merged.
type Topology struct {
	// LocalControllerAddress is the local APIC base, with any 64-bit
	// address override applied.
	LocalControllerAddress uint64 `yaml:"local_controller_address"`
	PCATCompat             bool   `yaml:"pcat_compat"`

	Processors         []Processor             `yaml:"processors"`
	IOAPICs            []IOAPIC                `yaml:"ioapics"`
	Overrides          []InterruptOverride     `yaml:"overrides,omitempty"`
	NMISources         []NMISource             `yaml:"nmi_sources,omitempty"`
	LocalNMIs          []LocalNMI              `yaml:"local_nmis,omitempty"`
	GICDistributors    []GICComponent          `yaml:"gic_distributors,omitempty"`
	GICRedistributors  []GICRedistributorRange `yaml:"gic_redistributors,omitempty"`
	GICITS             []GICComponent          `yaml:"gic_its,omitempty"`
	GICMSIFrames       []GICComponent          `yaml:"gic_msi_frames,omitempty"`
	MPWakeup           *MPWakeup               `yaml:"mp_wakeup,omitempty"`
	PlatformInterrupts int                     `yaml:"platform_interrupts,omitempty"`

	// Records counts every record yielded by the iterator.
	Records         int `yaml:"records"`
	ReservedRecords int `yaml:"reserved_records,omitempty"`
	OEMRecords      int `yaml:"oem_records,omitempty"`
}

// BuildTopology walks the records of madt. If the record sequence is
// malformed, the topology gathered up to the bad record is returned together
// with the iterator error.
func BuildTopology(madt table.MADT) (*Topology, *kernel.Error) {
	topo := &Topology{
		LocalControllerAddress: madt.LocalControllerAddress(),
		PCATCompat:             madt.Flags().PCATCompat(),
	}

	it := madt.Entries()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		topo.Records++
		topo.add(e)
	}

	return topo, it.Err()
}

func (topo *Topology) add(e table.MADTEntry) {
	switch rec := e.(type) {
	case table.MADTEntryLocalAPIC:
		topo.Processors = append(topo.Processors, Processor{
			Kind:          ProcessorLocalAPIC,
			UID:           uint32(rec.ProcessorID()),
			ID:            uint64(rec.APICID()),
			Enabled:       rec.Flags().Enabled(),
			OnlineCapable: rec.Flags().OnlineCapable(),
		})
	case table.MADTEntryLocalX2APIC:
		topo.Processors = append(topo.Processors, Processor{
			Kind:          ProcessorX2APIC,
			UID:           rec.ProcessorUID(),
			ID:            uint64(rec.X2APICID()),
			Enabled:       rec.Flags().Enabled(),
			OnlineCapable: rec.Flags().OnlineCapable(),
		})
	case table.MADTEntryLocalSAPIC:
		topo.Processors = append(topo.Processors, Processor{
			Kind:          ProcessorLocalSAPIC,
			UID:           rec.ProcessorUID(),
			ID:            uint64(rec.LocalSAPICID())<<8 | uint64(rec.LocalSAPICEID()),
			Enabled:       rec.Flags().Enabled(),
			OnlineCapable: rec.Flags().OnlineCapable(),
		})
	case table.MADTEntryGICC:
		topo.Processors = append(topo.Processors, Processor{
			Kind:          ProcessorGICC,
			UID:           rec.ProcessorUID(),
			ID:            rec.MPIDR(),
			Enabled:       rec.Flags().Enabled(),
			OnlineCapable: rec.Flags().OnlineCapable(),
		})
	case table.MADTEntryIOAPIC:
		topo.IOAPICs = append(topo.IOAPICs, IOAPIC{
			ID:      rec.IOAPICID(),
			Address: uint64(rec.Address()),
			GSIBase: rec.GSIBase(),
		})
	case table.MADTEntryIOSAPIC:
		topo.IOAPICs = append(topo.IOAPICs, IOAPIC{
			ID:      rec.IOAPICID(),
			Address: rec.Address(),
			GSIBase: rec.GSIBase(),
			SAPIC:   true,
		})
	case table.MADTEntryInterruptSrcOverride:
		topo.Overrides = append(topo.Overrides, InterruptOverride{
			Bus:      rec.Bus(),
			IRQ:      rec.Source(),
			GSI:      rec.GSI(),
			Polarity: rec.Flags().Polarity().String(),
			Trigger:  rec.Flags().TriggerMode().String(),
		})
	case table.MADTEntryNMISource:
		topo.NMISources = append(topo.NMISources, NMISource{
			GSI:      rec.GSI(),
			Polarity: rec.Flags().Polarity().String(),
			Trigger:  rec.Flags().TriggerMode().String(),
		})
	case table.MADTEntryLocalAPICNMI:
		topo.LocalNMIs = append(topo.LocalNMIs, LocalNMI{
			ProcessorUID:  uint32(rec.ProcessorUID()),
			AllProcessors: rec.AllProcessors(),
			LINT:          rec.LINT(),
			Polarity:      rec.Flags().Polarity().String(),
			Trigger:       rec.Flags().TriggerMode().String(),
		})
	case table.MADTEntryLocalX2APICNMI:
		topo.LocalNMIs = append(topo.LocalNMIs, LocalNMI{
			ProcessorUID:  rec.ProcessorUID(),
			AllProcessors: rec.AllProcessors(),
			LINT:          rec.LINT(),
			Polarity:      rec.Flags().Polarity().String(),
			Trigger:       rec.Flags().TriggerMode().String(),
		})
	case table.MADTEntryLocalAPICAddrOverride:
		topo.LocalControllerAddress = rec.Address()
	case table.MADTEntryPlatformIntSrc:
		topo.PlatformInterrupts++
	case table.MADTEntryGICD:
		topo.GICDistributors = append(topo.GICDistributors, GICComponent{
			ID:      rec.GICID(),
			Address: rec.PhysicalBaseAddress(),
			Version: rec.GICVersion(),
		})
	case table.MADTEntryGICR:
		topo.GICRedistributors = append(topo.GICRedistributors, GICRedistributorRange{
			Base:   rec.DiscoveryRangeBase(),
			Length: rec.DiscoveryRangeLength(),
		})
	case table.MADTEntryGICITS:
		topo.GICITS = append(topo.GICITS, GICComponent{
			ID:      rec.ITSID(),
			Address: rec.PhysicalBaseAddress(),
		})
	case table.MADTEntryGICMSIFrame:
		topo.GICMSIFrames = append(topo.GICMSIFrames, GICComponent{
			ID:      rec.MSIFrameID(),
			Address: rec.PhysicalBaseAddress(),
		})
	case table.MADTEntryMPWakeup:
		topo.MPWakeup = &MPWakeup{
			MailboxVersion: rec.MailboxVersion(),
			MailboxAddress: rec.MailboxAddress(),
			ResetVector:    rec.ResetVector(),
		}
	case table.MADTEntryReserved:
		topo.ReservedRecords++
	case table.MADTEntryOEMReserved:
		topo.OEMRecords++
	}
}

// EnabledProcessors returns the number of processors that are enabled at
// boot.
func (topo *Topology) EnabledProcessors() int {
	var count int
	for _, p := range topo.Processors {
		if p.Enabled {
			count++
		}
	}
	return count
}

// GSIForIRQ returns the global system interrupt that the ISA interrupt irq is
// delivered on. Without a matching override ISA IRQs are identity mapped.
func (topo *Topology) GSIForIRQ(irq uint8) uint32 {
	for _, ovr := range topo.Overrides {
		if ovr.Bus == 0 && ovr.IRQ == irq {
			return ovr.GSI
		}
	}
	return uint32(irq)
}
