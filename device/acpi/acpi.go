// Package acpi locates the ACPI root tables in physical memory and exposes
// the tables they reference to the rest of the system.
package acpi

import (
	"acpitopo/device"
	"acpitopo/device/acpi/physmem"
	"acpitopo/device/acpi/table"
	"acpitopo/kernel"
	"acpitopo/kernel/kfmt"
	"acpitopo/kernel/mem"
	"io"
)

var (
	errMissingRSDP = &kernel.Error{Module: "acpi", Message: "could not locate ACPI RSDP"}

	// RDSP must be located in the physical memory region 0xe0000 to 0xfffff
	rsdpLocationLow uintptr = 0xe0000
	rsdpLocationHi  uintptr = 0xfffff
	rsdpAlignment   uintptr = 16

	// Settings used by probeForACPI.
	physMem           physmem.Mapper
	rsdpAddress       uintptr
	keepInvalidTables bool
)

// SetPhysicalMemory sets the mapper used by the ACPI probe to access
// firmware memory. The probe is skipped while no mapper is configured.
func SetPhysicalMemory(m physmem.Mapper) {
	physMem = m
}

// SetRSDPAddress tells the probe where the RSDP lives, as reported by the boot
// protocol or EFI. A zero address makes the probe scan the BIOS area.
func SetRSDPAddress(addr uintptr) {
	rsdpAddress = addr
}

// SetKeepInvalidTables controls whether tables that fail checksum
// verification are registered instead of being skipped.
func SetKeepInvalidTables(keep bool) {
	keepInvalidTables = keep
}

// TableInfo describes a table discovered while enumerating the root table.
type TableInfo struct {
	Signature  string `yaml:"signature"`
	Address    uint64 `yaml:"address"`
	Length     uint32 `yaml:"length"`
	Revision   uint8  `yaml:"revision"`
	OEMID      string `yaml:"oem_id"`
	OEMTableID string `yaml:"oem_table_id"`
	Valid      bool   `yaml:"checksum_ok"`
}

// Driver walks the RSDT or XSDT and keeps a view over each table it finds.
type Driver struct {
	mem physmem.Mapper

	// rsdtAddr holds the address to the root system descriptor table.
	rsdtAddr uint64

	// useXSDT specifies if the driver must use the XSDT or the RSDT table.
	useXSDT bool

	acpiRev uint8

	// KeepInvalid registers tables with a bad checksum instead of
	// skipping them.
	KeepInvalid bool

	// The table map allows the driver to lookup an ACPI table by its
	// signature. When several tables share a signature the first one
	// listed by the root table is kept.
	tableMap map[string]table.SDT

	// tables lists every registered table in discovery order.
	tables []TableInfo
}

// NewDriver returns a driver for the ACPI tables reachable through the RSDP
// at rsdpAddr. If rsdpAddr is 0 the BIOS read-only area is scanned for the
// RSDP instead.
func NewDriver(m physmem.Mapper, rsdpAddr uintptr) (*Driver, *kernel.Error) {
	var (
		rsdp table.RSDP
		err  *kernel.Error
	)

	if rsdpAddr == 0 {
		rsdp, err = locateRSDP(m)
	} else {
		rsdp, err = readRSDP(m, rsdpAddr)
	}

	if err != nil {
		return nil, err
	}

	rootAddr, useXSDT := rsdp.Root()
	return &Driver{
		mem:      m,
		rsdtAddr: rootAddr,
		useXSDT:  useXSDT,
		acpiRev:  rsdp.Revision(),
	}, nil
}

// DriverInit initializes this driver.
func (drv *Driver) DriverInit(w io.Writer) *kernel.Error {
	if err := drv.enumerateTables(w); err != nil {
		return err
	}

	drv.printTableInfo(w)

	return nil
}

// DriverName returns the name of this driver.
func (*Driver) DriverName() string {
	return "ACPI"
}

// DriverVersion returns the version of this driver.
func (*Driver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// RootTable returns the physical address of the root table and whether it is
// an XSDT.
func (drv *Driver) RootTable() (uint64, bool) {
	return drv.rsdtAddr, drv.useXSDT
}

// ACPIRevision returns the revision advertised by the RSDP.
func (drv *Driver) ACPIRevision() uint8 {
	return drv.acpiRev
}

// LookupTable returns the table with the given signature. It only sees
// tables registered by DriverInit.
func (drv *Driver) LookupTable(signature string) (table.SDT, bool) {
	sdt, ok := drv.tableMap[signature]
	return sdt, ok
}

// Tables returns the registered tables in discovery order.
func (drv *Driver) Tables() []TableInfo {
	return drv.tables
}

// MapTable maps the table header at physAddr, then expands the mapping to
// the length declared by the header. The checksum is not verified.
func (drv *Driver) MapTable(physAddr uint64) (table.SDT, *kernel.Error) {
	addr := uintptr(physAddr)
	if uint64(addr) != physAddr {
		return table.SDT{}, physmem.ErrOutOfRange
	}

	hdr, err := drv.mem.Map(addr, table.SizeofSDTHeader)
	if err != nil {
		return table.SDT{}, err
	}

	length, err := table.PeekLength(hdr)
	if err != nil {
		return table.SDT{}, err
	}

	if length < table.SizeofSDTHeader {
		return table.NewSDT(hdr)
	}

	b, err := drv.mem.Map(addr, mem.Size(length))
	if err != nil {
		return table.SDT{}, err
	}

	return table.NewSDT(b)
}

func (drv *Driver) printTableInfo(w io.Writer) {
	for _, info := range drv.tables {
		kfmt.Fprintf(w, "%s at 0x%016x %6x (%6s %8s)\n",
			info.Signature,
			info.Address,
			info.Length,
			info.OEMID,
			info.OEMTableID,
		)
	}
}

// enumerateTables detects and maps all ACPI tables that are present. Besides
// the table list defined by the root table, this method will also peek into
// the FADT (if found) looking for the address of the DSDT.
func (drv *Driver) enumerateTables(w io.Writer) *kernel.Error {
	sdt, err := drv.MapTable(drv.rsdtAddr)
	if err != nil {
		return err
	}

	if err = sdt.Verify(); err != nil && !drv.KeepInvalid {
		return err
	}

	root, err := table.NewRSDT(sdt)
	if err != nil {
		return err
	}

	drv.tableMap = make(map[string]table.SDT)
	drv.tables = nil

	for _, addr := range root.Entries() {
		if addr == 0 {
			continue
		}

		if sdt, err = drv.MapTable(addr); err != nil {
			return err
		}

		if !drv.register(w, addr, sdt) {
			continue
		}

		// The FADT allows us to lookup the DSDT table address
		if sdt.Signature() != table.SignatureFADT {
			continue
		}

		fadt, err := table.NewFADT(sdt)
		if err != nil {
			continue
		}

		dsdtAddr := fadt.DSDTAddress(drv.acpiRev)
		if dsdtAddr == 0 {
			continue
		}

		if sdt, err = drv.MapTable(dsdtAddr); err != nil {
			return err
		}

		drv.register(w, dsdtAddr, sdt)
	}

	return nil
}

// register adds sdt to the table map. Tables failing checksum verification
// are logged and skipped unless the driver keeps invalid tables.
func (drv *Driver) register(w io.Writer, addr uint64, sdt table.SDT) bool {
	valid := sdt.Valid()
	if !valid && !drv.KeepInvalid {
		kfmt.Fprintf(w, "%s at 0x%016x %6x [checksum mismatch; skipping]\n",
			sdt.Signature(),
			addr,
			sdt.Length(),
		)
		return false
	}

	signature := sdt.Signature()
	if _, exists := drv.tableMap[signature]; !exists {
		drv.tableMap[signature] = sdt
	}

	drv.tables = append(drv.tables, TableInfo{
		Signature:  signature,
		Address:    addr,
		Length:     sdt.Length(),
		Revision:   sdt.Revision(),
		OEMID:      sdt.OEMID(),
		OEMTableID: sdt.OEMTableID(),
		Valid:      valid,
	})

	return true
}

// readRSDP parses the RSDP stored at addr. The extended part is only mapped
// when the descriptor revision calls for it.
func readRSDP(m physmem.Mapper, addr uintptr) (table.RSDP, *kernel.Error) {
	b, err := m.Map(addr, table.SizeofRSDP)
	if err != nil {
		return table.RSDP{}, err
	}

	if b[15] >= table.RSDPRev2Plus {
		if b, err = m.Map(addr, table.SizeofExtRSDP); err != nil {
			return table.RSDP{}, err
		}
	}

	return table.ParseRSDP(b)
}

// locateRSDP scans the memory region [rsdpLocationLow, rsdpLocationHi]
// looking for the signature of the root system descriptor pointer (RSDP).
// Candidates whose checksum does not match are ignored.
func locateRSDP(m physmem.Mapper) (table.RSDP, *kernel.Error) {
	region, err := m.Map(rsdpLocationLow, mem.Size(rsdpLocationHi-rsdpLocationLow+1))
	if err != nil {
		return table.RSDP{}, err
	}

	// The RSDP should be aligned on a 16-byte boundary
	for off := uintptr(0); off+table.SizeofRSDP <= uintptr(len(region)); off += rsdpAlignment {
		if !table.MatchRSDPSignature(region[off:]) {
			continue
		}

		if rsdp, err := table.ParseRSDP(region[off:]); err == nil {
			return rsdp, nil
		}
	}

	return table.RSDP{}, errMissingRSDP
}

func probeForACPI() device.Driver {
	if physMem == nil {
		return nil
	}

	drv, err := NewDriver(physMem, rsdpAddress)
	if err != nil {
		return nil
	}

	drv.KeepInvalid = keepInvalidTables
	return drv
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderACPI,
		Probe: probeForACPI,
	})
}
