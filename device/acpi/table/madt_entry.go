package table

import "strconv"

// sizeofEntryHeader is the size of the type/length pair that starts every
// MADT record.
const sizeofEntryHeader = 2

// MADTEntryType describes the type of a MADT record.
type MADTEntryType uint8

// The list of MADT record types defined by ACPI 6.5. Types in
// [MADTEntryTypeReservedStart, MADTEntryTypeOEMStart) are reserved for
// future ACPI revisions; types from MADTEntryTypeOEMStart onwards are
// reserved for OEM use.
const (
	MADTEntryTypeLocalAPIC MADTEntryType = iota
	MADTEntryTypeIOAPIC
	MADTEntryTypeIntSrcOverride
	MADTEntryTypeNMISource
	MADTEntryTypeLocalAPICNMI
	MADTEntryTypeLocalAPICAddrOverride
	MADTEntryTypeIOSAPIC
	MADTEntryTypeLocalSAPIC
	MADTEntryTypePlatformIntSrc
	MADTEntryTypeLocalX2APIC
	MADTEntryTypeLocalX2APICNMI
	MADTEntryTypeGICC
	MADTEntryTypeGICD
	MADTEntryTypeGICMSIFrame
	MADTEntryTypeGICR
	MADTEntryTypeGICITS
	MADTEntryTypeMPWakeup

	MADTEntryTypeReservedStart MADTEntryType = 0x11
	MADTEntryTypeOEMStart      MADTEntryType = 0x80
)

var entryTypeNames = [...]string{
	MADTEntryTypeLocalAPIC:             "Processor Local APIC",
	MADTEntryTypeIOAPIC:                "I/O APIC",
	MADTEntryTypeIntSrcOverride:        "Interrupt Source Override",
	MADTEntryTypeNMISource:             "NMI Source",
	MADTEntryTypeLocalAPICNMI:          "Local APIC NMI",
	MADTEntryTypeLocalAPICAddrOverride: "Local APIC Address Override",
	MADTEntryTypeIOSAPIC:               "I/O SAPIC",
	MADTEntryTypeLocalSAPIC:            "Local SAPIC",
	MADTEntryTypePlatformIntSrc:        "Platform Interrupt Sources",
	MADTEntryTypeLocalX2APIC:           "Processor Local x2APIC",
	MADTEntryTypeLocalX2APICNMI:        "Local x2APIC NMI",
	MADTEntryTypeGICC:                  "GIC CPU Interface",
	MADTEntryTypeGICD:                  "GIC Distributor",
	MADTEntryTypeGICMSIFrame:           "GIC MSI Frame",
	MADTEntryTypeGICR:                  "GIC Redistributor",
	MADTEntryTypeGICITS:                "GIC Interrupt Translation Service",
	MADTEntryTypeMPWakeup:              "Multiprocessor Wakeup",
}

// String returns the ACPI name of the record type.
func (t MADTEntryType) String() string {
	switch {
	case int(t) < len(entryTypeNames):
		return entryTypeNames[t]
	case t < MADTEntryTypeOEMStart:
		return "Reserved (0x" + strconv.FormatUint(uint64(t), 16) + ")"
	default:
		return "OEM Reserved (0x" + strconv.FormatUint(uint64(t), 16) + ")"
	}
}

// MADTEntry is implemented by every record type that MADTIterator yields.
// The set of implementations is closed: each known record type has its own
// struct and unknown types are reported as MADTEntryReserved or
// MADTEntryOEMReserved. Consumers use a type switch to access the fields.
type MADTEntry interface {
	// Type returns the record type tag.
	Type() MADTEntryType

	// Length returns the record length, header included.
	Length() uint8

	madtEntry()
}

// entry is the record view embedded by all MADTEntry implementations. raw
// spans the complete record starting at its type byte.
type entry struct {
	raw []byte
}

func (e entry) Type() MADTEntryType { return MADTEntryType(e.raw[0]) }
func (e entry) Length() uint8       { return e.raw[1] }
func (entry) madtEntry()            {}

func (e entry) u8(off int) uint8   { return readU8(e.raw, off) }
func (e entry) u16(off int) uint16 { return readU16(e.raw, off) }
func (e entry) u32(off int) uint32 { return readU32(e.raw, off) }
func (e entry) u64(off int) uint64 { return readU64(e.raw, off) }

// entryDecoders maps each known record type to a constructor for its typed
// view. Records shorter than the layout of their type are still decoded:
// accessors for fields past the end of the record return zero.
var entryDecoders = [...]func(entry) MADTEntry{
	MADTEntryTypeLocalAPIC:             func(e entry) MADTEntry { return MADTEntryLocalAPIC{e} },
	MADTEntryTypeIOAPIC:                func(e entry) MADTEntry { return MADTEntryIOAPIC{e} },
	MADTEntryTypeIntSrcOverride:        func(e entry) MADTEntry { return MADTEntryInterruptSrcOverride{e} },
	MADTEntryTypeNMISource:             func(e entry) MADTEntry { return MADTEntryNMISource{e} },
	MADTEntryTypeLocalAPICNMI:          func(e entry) MADTEntry { return MADTEntryLocalAPICNMI{e} },
	MADTEntryTypeLocalAPICAddrOverride: func(e entry) MADTEntry { return MADTEntryLocalAPICAddrOverride{e} },
	MADTEntryTypeIOSAPIC:               func(e entry) MADTEntry { return MADTEntryIOSAPIC{e} },
	MADTEntryTypeLocalSAPIC:            func(e entry) MADTEntry { return MADTEntryLocalSAPIC{e} },
	MADTEntryTypePlatformIntSrc:        func(e entry) MADTEntry { return MADTEntryPlatformIntSrc{e} },
	MADTEntryTypeLocalX2APIC:           func(e entry) MADTEntry { return MADTEntryLocalX2APIC{e} },
	MADTEntryTypeLocalX2APICNMI:        func(e entry) MADTEntry { return MADTEntryLocalX2APICNMI{e} },
	MADTEntryTypeGICC:                  func(e entry) MADTEntry { return MADTEntryGICC{e} },
	MADTEntryTypeGICD:                  func(e entry) MADTEntry { return MADTEntryGICD{e} },
	MADTEntryTypeGICMSIFrame:           func(e entry) MADTEntry { return MADTEntryGICMSIFrame{e} },
	MADTEntryTypeGICR:                  func(e entry) MADTEntry { return MADTEntryGICR{e} },
	MADTEntryTypeGICITS:                func(e entry) MADTEntry { return MADTEntryGICITS{e} },
	MADTEntryTypeMPWakeup:              func(e entry) MADTEntry { return MADTEntryMPWakeup{e} },
}

// decodeEntry classifies raw by its type tag. raw has already been bounds
// checked by nextRecord.
func decodeEntry(raw []byte) MADTEntry {
	e := entry{raw: raw}

	switch t := e.Type(); {
	case int(t) < len(entryDecoders):
		return entryDecoders[t](e)
	case t < MADTEntryTypeOEMStart:
		return MADTEntryReserved{e}
	default:
		return MADTEntryOEMReserved{e}
	}
}

// ProcessorFlags is the flag word of the local APIC, x2APIC and SAPIC
// records.
type ProcessorFlags uint32

// Enabled returns true if the processor is ready for use.
func (f ProcessorFlags) Enabled() bool { return f&(1<<0) != 0 }

// OnlineCapable returns true if a disabled processor can be brought online
// at runtime.
func (f ProcessorFlags) OnlineCapable() bool { return f&(1<<1) != 0 }

// Polarity describes the input signal polarity of an interrupt.
type Polarity uint8

// The list of supported interrupt polarities.
const (
	PolarityConforms Polarity = iota
	PolarityActiveHigh
	PolarityReserved
	PolarityActiveLow
)

var polarityNames = [...]string{"conforms", "active-high", "reserved", "active-low"}

// String returns the name of the polarity.
func (p Polarity) String() string { return polarityNames[p&3] }

// TriggerMode describes the trigger mode of an interrupt.
type TriggerMode uint8

// The list of supported trigger modes.
const (
	TriggerConforms TriggerMode = iota
	TriggerEdge
	TriggerReserved
	TriggerLevel
)

var triggerNames = [...]string{"conforms", "edge", "reserved", "level"}

// String returns the name of the trigger mode.
func (m TriggerMode) String() string { return triggerNames[m&3] }

// MPSINTIFlags holds the polarity and trigger mode bits shared by the
// override and NMI records.
type MPSINTIFlags uint16

// Polarity returns the interrupt polarity (bits 0-1).
func (f MPSINTIFlags) Polarity() Polarity { return Polarity(f & 3) }

// TriggerMode returns the interrupt trigger mode (bits 2-3).
func (f MPSINTIFlags) TriggerMode() TriggerMode { return TriggerMode((f >> 2) & 3) }

// MADTEntryLocalAPIC describes a single physical processor and its local
// interrupt controller.
type MADTEntryLocalAPIC struct{ entry }

// ProcessorID returns the ACPI processor UID.
func (e MADTEntryLocalAPIC) ProcessorID() uint8 { return e.u8(2) }

// APICID returns the processor's local APIC ID.
func (e MADTEntryLocalAPIC) APICID() uint8 { return e.u8(3) }

// Flags returns the processor flags.
func (e MADTEntryLocalAPIC) Flags() ProcessorFlags { return ProcessorFlags(e.u32(4)) }

// MADTEntryIOAPIC describes an I/O Advanced Programmable Interrupt Controller.
type MADTEntryIOAPIC struct{ entry }

// IOAPICID returns the I/O APIC ID.
func (e MADTEntryIOAPIC) IOAPICID() uint8 { return e.u8(2) }

// Address returns the physical address of the controller registers.
func (e MADTEntryIOAPIC) Address() uint32 { return e.u32(4) }

// GSIBase returns the first global system interrupt handled by the
// controller.
func (e MADTEntryIOAPIC) GSIBase() uint32 { return e.u32(8) }

// MADTEntryInterruptSrcOverride contains the data for an Interrupt Source
// Override. This mechanism is used to map IRQ sources to global system
// interrupts.
type MADTEntryInterruptSrcOverride struct{ entry }

// Bus returns the source bus; 0 denotes ISA.
func (e MADTEntryInterruptSrcOverride) Bus() uint8 { return e.u8(2) }

// Source returns the bus-relative IRQ.
func (e MADTEntryInterruptSrcOverride) Source() uint8 { return e.u8(3) }

// GSI returns the global system interrupt the source is routed to.
func (e MADTEntryInterruptSrcOverride) GSI() uint32 { return e.u32(4) }

// Flags returns the polarity and trigger mode of the interrupt.
func (e MADTEntryInterruptSrcOverride) Flags() MPSINTIFlags { return MPSINTIFlags(e.u16(8)) }

// MADTEntryNMISource specifies a global system interrupt that must be
// configured as a non-maskable interrupt.
type MADTEntryNMISource struct{ entry }

// Flags returns the polarity and trigger mode of the NMI.
func (e MADTEntryNMISource) Flags() MPSINTIFlags { return MPSINTIFlags(e.u16(2)) }

// GSI returns the global system interrupt that signals the NMI.
func (e MADTEntryNMISource) GSI() uint32 { return e.u32(4) }

// AllProcessorsUID is the processor UID value used by the local NMI records
// to address every processor.
const AllProcessorsUID = 0xff

// MADTEntryLocalAPICNMI describes a non-maskable interrupt that we need to
// set up for a single processor or all processors.
type MADTEntryLocalAPICNMI struct{ entry }

// ProcessorUID returns the ACPI processor UID the NMI applies to.
func (e MADTEntryLocalAPICNMI) ProcessorUID() uint8 { return e.u8(2) }

// AllProcessors returns true if the NMI must be configured on every
// processor.
func (e MADTEntryLocalAPICNMI) AllProcessors() bool { return e.ProcessorUID() == AllProcessorsUID }

// Flags returns the polarity and trigger mode of the NMI.
func (e MADTEntryLocalAPICNMI) Flags() MPSINTIFlags { return MPSINTIFlags(e.u16(3)) }

// LINT returns the local APIC interrupt input (0 or 1) the NMI is connected
// to.
func (e MADTEntryLocalAPICNMI) LINT() uint8 { return e.u8(5) }

// MADTEntryLocalAPICAddrOverride provides the 64-bit address of the local
// APIC, superseding the 32-bit address stored in the MADT prefix.
type MADTEntryLocalAPICAddrOverride struct{ entry }

// Address returns the 64-bit physical address of the local APIC.
func (e MADTEntryLocalAPICAddrOverride) Address() uint64 { return e.u64(4) }

// MADTEntryIOSAPIC describes an I/O SAPIC.
type MADTEntryIOSAPIC struct{ entry }

// IOAPICID returns the I/O SAPIC ID.
func (e MADTEntryIOSAPIC) IOAPICID() uint8 { return e.u8(2) }

// GSIBase returns the first global system interrupt handled by the
// controller.
func (e MADTEntryIOSAPIC) GSIBase() uint32 { return e.u32(4) }

// Address returns the 64-bit physical address of the controller.
func (e MADTEntryIOSAPIC) Address() uint64 { return e.u64(8) }

// MADTEntryLocalSAPIC describes a processor and its local SAPIC.
type MADTEntryLocalSAPIC struct{ entry }

// ProcessorID returns the ACPI processor ID.
func (e MADTEntryLocalSAPIC) ProcessorID() uint8 { return e.u8(2) }

// LocalSAPICID returns the local SAPIC ID.
func (e MADTEntryLocalSAPIC) LocalSAPICID() uint8 { return e.u8(3) }

// LocalSAPICEID returns the local SAPIC EID.
func (e MADTEntryLocalSAPIC) LocalSAPICEID() uint8 { return e.u8(4) }

// Flags returns the processor flags.
func (e MADTEntryLocalSAPIC) Flags() ProcessorFlags { return ProcessorFlags(e.u32(8)) }

// ProcessorUID returns the numeric ACPI processor UID.
func (e MADTEntryLocalSAPIC) ProcessorUID() uint32 { return e.u32(12) }

// ProcessorUIDString returns the null-terminated UID string that follows the
// fixed part of the record.
func (e MADTEntryLocalSAPIC) ProcessorUIDString() string {
	if len(e.raw) <= 16 {
		return ""
	}

	s := e.raw[16:]
	for i, c := range s {
		if c == 0 {
			return string(s[:i])
		}
	}
	return string(s)
}

// PlatformInterruptType identifies the kind of a platform interrupt source.
type PlatformInterruptType uint8

// The list of supported platform interrupt types.
const (
	PlatformInterruptPMI PlatformInterruptType = 1 + iota
	PlatformInterruptINIT
	PlatformInterruptCorrectedError
)

// MADTEntryPlatformIntSrc describes a platform interrupt source on systems
// with I/O SAPICs.
type MADTEntryPlatformIntSrc struct{ entry }

// Flags returns the polarity and trigger mode of the interrupt.
func (e MADTEntryPlatformIntSrc) Flags() MPSINTIFlags { return MPSINTIFlags(e.u16(2)) }

// InterruptType returns the kind of platform interrupt.
func (e MADTEntryPlatformIntSrc) InterruptType() PlatformInterruptType {
	return PlatformInterruptType(e.u8(4))
}

// ProcessorID returns the ID of the processor that receives the interrupt.
func (e MADTEntryPlatformIntSrc) ProcessorID() uint8 { return e.u8(5) }

// ProcessorEID returns the EID of the processor that receives the interrupt.
func (e MADTEntryPlatformIntSrc) ProcessorEID() uint8 { return e.u8(6) }

// IOSAPICVector returns the vector the OS programs into the I/O SAPIC
// redirection entry.
func (e MADTEntryPlatformIntSrc) IOSAPICVector() uint8 { return e.u8(7) }

// GSI returns the global system interrupt of the source.
func (e MADTEntryPlatformIntSrc) GSI() uint32 { return e.u32(8) }

// CPEIProcessorOverride returns true if the corrected platform error
// interrupt must be delivered to the processor named by the record.
func (e MADTEntryPlatformIntSrc) CPEIProcessorOverride() bool { return e.u32(12)&1 != 0 }

// MADTEntryLocalX2APIC describes a processor whose local APIC ID does not
// fit in 8 bits.
type MADTEntryLocalX2APIC struct{ entry }

// X2APICID returns the processor's 32-bit x2APIC ID.
func (e MADTEntryLocalX2APIC) X2APICID() uint32 { return e.u32(4) }

// Flags returns the processor flags.
func (e MADTEntryLocalX2APIC) Flags() ProcessorFlags { return ProcessorFlags(e.u32(8)) }

// ProcessorUID returns the ACPI processor UID.
func (e MADTEntryLocalX2APIC) ProcessorUID() uint32 { return e.u32(12) }

// AllX2APICProcessorsUID addresses every processor in a local x2APIC NMI
// record.
const AllX2APICProcessorsUID = 0xffffffff

// MADTEntryLocalX2APICNMI is the x2APIC counterpart of MADTEntryLocalAPICNMI.
type MADTEntryLocalX2APICNMI struct{ entry }

// Flags returns the polarity and trigger mode of the NMI.
func (e MADTEntryLocalX2APICNMI) Flags() MPSINTIFlags { return MPSINTIFlags(e.u16(2)) }

// ProcessorUID returns the UID of the target processor or
// AllX2APICProcessorsUID.
func (e MADTEntryLocalX2APICNMI) ProcessorUID() uint32 { return e.u32(4) }

// LINT returns the local x2APIC interrupt input the NMI is connected to.
func (e MADTEntryLocalX2APICNMI) LINT() uint8 { return e.u8(8) }

// AllProcessors returns true if the NMI must be configured on every
// processor.
func (e MADTEntryLocalX2APICNMI) AllProcessors() bool {
	return e.ProcessorUID() == AllX2APICProcessorsUID
}

// GICCFlags is the flag word of a GIC CPU interface record.
type GICCFlags uint32

// Enabled returns true if the processor is ready for use.
func (f GICCFlags) Enabled() bool { return f&(1<<0) != 0 }

// PerformanceInterruptEdge returns true if the performance monitoring
// interrupt is edge triggered.
func (f GICCFlags) PerformanceInterruptEdge() bool { return f&(1<<1) != 0 }

// VGICMaintenanceEdge returns true if the VGIC maintenance interrupt is edge
// triggered.
func (f GICCFlags) VGICMaintenanceEdge() bool { return f&(1<<2) != 0 }

// OnlineCapable returns true if a disabled processor can be brought online
// at runtime.
func (f GICCFlags) OnlineCapable() bool { return f&(1<<3) != 0 }

// MADTEntryGICC describes a processor on systems using an ARM Generic
// Interrupt Controller. Records emitted by ACPI 5.0 firmware are 40 bytes
// long; the fields after PhysicalBaseAddress read as zero for them.
type MADTEntryGICC struct{ entry }

// CPUInterfaceNumber returns the GIC CPU interface number.
func (e MADTEntryGICC) CPUInterfaceNumber() uint32 { return e.u32(4) }

// ProcessorUID returns the ACPI processor UID.
func (e MADTEntryGICC) ProcessorUID() uint32 { return e.u32(8) }

// Flags returns the GICC flag word.
func (e MADTEntryGICC) Flags() GICCFlags { return GICCFlags(e.u32(12)) }

// ParkingProtocolVersion returns the version of the ARM parking protocol implemented.
func (e MADTEntryGICC) ParkingProtocolVersion() uint32 { return e.u32(16) }

// PerformanceInterruptGSIV returns the GSIV of the performance monitoring interrupt.
func (e MADTEntryGICC) PerformanceInterruptGSIV() uint32 { return e.u32(20) }

// ParkedAddress returns the physical address of the processor parking protocol mailbox.
func (e MADTEntryGICC) ParkedAddress() uint64 { return e.u64(24) }

// PhysicalBaseAddress returns the physical address of the GIC CPU interface.
func (e MADTEntryGICC) PhysicalBaseAddress() uint64 { return e.u64(32) }

// GICV returns the address of the GIC virtual CPU interface registers.
func (e MADTEntryGICC) GICV() uint64 { return e.u64(40) }

// GICH returns the address of the GIC virtual interface control block.
func (e MADTEntryGICC) GICH() uint64 { return e.u64(48) }

// VGICMaintenanceInterrupt returns the GSIV of the virtual GIC maintenance interrupt.
func (e MADTEntryGICC) VGICMaintenanceInterrupt() uint32 { return e.u32(56) }

// GICRBaseAddress returns the physical address of the processor's redistributor.
func (e MADTEntryGICC) GICRBaseAddress() uint64 { return e.u64(60) }

// MPIDR returns the MPIDR affinity fields of the processor.
func (e MADTEntryGICC) MPIDR() uint64 { return e.u64(68) }

// PowerEfficiencyClass returns the relative power efficiency class of the processor.
func (e MADTEntryGICC) PowerEfficiencyClass() uint8 { return e.u8(76) }

// SPEOverflowInterrupt returns the GSIV of the statistical profiling overflow interrupt.
func (e MADTEntryGICC) SPEOverflowInterrupt() uint16 { return e.u16(78) }

// TRBEInterrupt returns the GSIV of the trace buffer extension interrupt.
func (e MADTEntryGICC) TRBEInterrupt() uint16 { return e.u16(80) }

// MADTEntryGICD describes the GIC distributor.
type MADTEntryGICD struct{ entry }

// GICID returns the GIC distributor hardware ID.
func (e MADTEntryGICD) GICID() uint32 { return e.u32(4) }

// PhysicalBaseAddress returns the distributor's physical base address.
func (e MADTEntryGICD) PhysicalBaseAddress() uint64 { return e.u64(8) }

// GICVersion returns the GIC architecture version or 0 if the version must
// be probed from the hardware.
func (e MADTEntryGICD) GICVersion() uint8 { return e.u8(20) }

// MADTEntryGICMSIFrame describes a GICv2m MSI frame.
type MADTEntryGICMSIFrame struct{ entry }

// MSIFrameID returns the GIC MSI frame ID.
func (e MADTEntryGICMSIFrame) MSIFrameID() uint32 { return e.u32(4) }

// PhysicalBaseAddress returns the physical address of the frame.
func (e MADTEntryGICMSIFrame) PhysicalBaseAddress() uint64 { return e.u64(8) }

// SPICountBaseSelect returns true if SPICount and SPIBase override the
// values reported by the frame's MSI_TYPER register.
func (e MADTEntryGICMSIFrame) SPICountBaseSelect() bool { return e.u32(16)&1 != 0 }

// SPICount returns the number of SPIs assigned to the frame.
func (e MADTEntryGICMSIFrame) SPICount() uint16 { return e.u16(20) }

// SPIBase returns the first SPI assigned to the frame.
func (e MADTEntryGICMSIFrame) SPIBase() uint16 { return e.u16(22) }

// MADTEntryGICR describes a GIC redistributor discovery range.
type MADTEntryGICR struct{ entry }

// DiscoveryRangeBase returns the physical address of the redistributor
// discovery range.
func (e MADTEntryGICR) DiscoveryRangeBase() uint64 { return e.u64(4) }

// DiscoveryRangeLength returns the length of the discovery range in bytes.
func (e MADTEntryGICR) DiscoveryRangeLength() uint32 { return e.u32(12) }

// MADTEntryGICITS describes a GIC interrupt translation service.
type MADTEntryGICITS struct{ entry }

// ITSID returns the GIC ITS ID.
func (e MADTEntryGICITS) ITSID() uint32 { return e.u32(4) }

// PhysicalBaseAddress returns the physical address of the ITS.
func (e MADTEntryGICITS) PhysicalBaseAddress() uint64 { return e.u64(8) }

// MADTEntryMPWakeup describes the mailbox used to wake application
// processors on platforms without INIT/SIPI.
type MADTEntryMPWakeup struct{ entry }

// MailboxVersion returns the version of the wakeup mailbox protocol.
func (e MADTEntryMPWakeup) MailboxVersion() uint16 { return e.u16(2) }

// MailboxAddress returns the physical address of the wakeup mailbox.
func (e MADTEntryMPWakeup) MailboxAddress() uint64 { return e.u64(8) }

// ResetVector returns the reset vector added in ACPI 6.6 or 0 for older
// records.
func (e MADTEntryMPWakeup) ResetVector() uint64 { return e.u64(16) }

// MADTEntryReserved is a record whose type is reserved for future ACPI
// revisions. Its payload is kept undecoded.
type MADTEntryReserved struct{ entry }

// Payload returns the bytes following the record header. Callers must not
// modify them.
func (e MADTEntryReserved) Payload() []byte { return e.raw[sizeofEntryHeader:] }

// MADTEntryOEMReserved is a record whose type is reserved for OEM use. Its
// payload is kept undecoded.
type MADTEntryOEMReserved struct{ entry }

// Payload returns the bytes following the record header. Callers must not
// modify them.
func (e MADTEntryOEMReserved) Payload() []byte { return e.raw[sizeofEntryHeader:] }
