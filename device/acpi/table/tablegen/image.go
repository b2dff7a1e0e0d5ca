package tablegen

import (
	"encoding/hex"
	"fmt"
)

// Config describes a synthetic firmware memory image. All addresses are
// physical addresses.
type Config struct {
	// Base and Size describe the physical range covered by the image.
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`

	// RSDPAddr is where the RSDP is written. It defaults to the start of
	// the BIOS read-only area (0xE0000) so that a scan can discover it.
	RSDPAddr   uint64 `yaml:"rsdp_addr"`
	TablesAddr uint64 `yaml:"tables_addr"`

	// ACPIRevision selects the RSDP revision: 0 emits an RSDT, 2 an XSDT.
	ACPIRevision uint8 `yaml:"acpi_revision"`

	NumCPUs    int    `yaml:"cpus"`
	LAPICBase  uint32 `yaml:"lapic_base"`
	PCATCompat bool   `yaml:"pcat_compat"`

	// X2APIC emits Processor Local x2APIC records instead of local APIC
	// records.
	X2APIC bool `yaml:"x2apic"`

	IOAPIC IOAPICConfig `yaml:"ioapic"`

	// ISAOverrides emits MADT interrupt source overrides for legacy ISA IRQs.
	ISAOverrides []InterruptOverride `yaml:"isa_overrides"`

	// LINT1NMI emits a Local APIC NMI record on LINT1 for all processors.
	LINT1NMI bool `yaml:"lint1_nmi"`

	// ExtraRecords are appended verbatim after the generated records.
	ExtraRecords []RawRecord `yaml:"extra_records"`

	OEMID      string `yaml:"oem_id"`
	OEMTableID string `yaml:"oem_table_id"`
}

// IOAPICConfig describes the I/O APIC record emitted into the MADT.
type IOAPICConfig struct {
	ID      uint8  `yaml:"id"`
	Address uint32 `yaml:"address"`
	GSIBase uint32 `yaml:"gsi_base"`
}

// InterruptOverride describes a single MADT interrupt source override.
type InterruptOverride struct {
	Bus   uint8  `yaml:"bus"`
	IRQ   uint8  `yaml:"irq"`
	GSI   uint32 `yaml:"gsi"`
	Flags uint16 `yaml:"flags"`
}

// RawRecord is a MADT record given as a type and a hex-encoded payload.
type RawRecord struct {
	Type    uint8  `yaml:"type"`
	Payload string `yaml:"payload"`
}

// maxXAPICProcessors is the number of processors addressable by 8-bit local
// APIC IDs; 0xff is the broadcast ID.
const maxXAPICProcessors = 255

// Default layout constants.
const (
	defaultSize      = 0x100000
	defaultRSDPAddr  = 0xe0000
	defaultTablesOff = 0x1000
	defaultLAPICBase = 0xfee00000
	defaultIOAPIC    = 0xfec00000
)

func (c *Config) normalize() {
	if c.Size == 0 {
		c.Size = defaultSize
	}
	if c.RSDPAddr == 0 {
		c.RSDPAddr = c.Base + defaultRSDPAddr
	}
	if c.TablesAddr == 0 {
		c.TablesAddr = c.RSDPAddr + defaultTablesOff
	}
	if c.NumCPUs <= 0 {
		c.NumCPUs = 1
	}
	if c.LAPICBase == 0 {
		c.LAPICBase = defaultLAPICBase
	}
	if c.IOAPIC.Address == 0 {
		c.IOAPIC.Address = defaultIOAPIC
	}
}

func (c *Config) oem() OEMInfo {
	oem := DefaultOEMInfo()
	if c.OEMID != "" {
		oem.OEMID = [6]byte{' ', ' ', ' ', ' ', ' ', ' '}
		copy(oem.OEMID[:], c.OEMID)
	}
	if c.OEMTableID != "" {
		oem.OEMTableID = [8]byte{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
		copy(oem.OEMTableID[:], c.OEMTableID)
	}
	return oem
}

// Image is a synthetic physical memory image.
type Image struct {
	// Base is the physical address of Data[0].
	Base uint64
	Data []byte

	// Physical addresses of the generated structures.
	RSDPAddr uint64
	RootAddr uint64
	MADTAddr uint64
	FADTAddr uint64
	DSDTAddr uint64
}

// BuildMADTBody returns the MADT body described by cfg.
func BuildMADTBody(cfg Config) ([]byte, error) {
	cfg.normalize()

	var flags uint32
	if cfg.PCATCompat {
		flags |= 1
	}

	if !cfg.X2APIC && cfg.NumCPUs > maxXAPICProcessors {
		return nil, fmt.Errorf("tablegen: %d processors need x2apic records; local APIC IDs stop at %d", cfg.NumCPUs, maxXAPICProcessors-1)
	}

	b := NewMADT(cfg.LAPICBase, flags)
	for cpu := 0; cpu < cfg.NumCPUs; cpu++ {
		if cfg.X2APIC {
			b.LocalX2APIC(uint32(cpu), 1, uint32(cpu))
			continue
		}
		b.LocalAPIC(uint8(cpu), uint8(cpu), 1)
	}

	b.IOAPIC(cfg.IOAPIC.ID, cfg.IOAPIC.Address, cfg.IOAPIC.GSIBase)

	for _, ovr := range cfg.ISAOverrides {
		b.InterruptOverride(ovr.Bus, ovr.IRQ, ovr.GSI, ovr.Flags)
	}

	if cfg.LINT1NMI {
		if cfg.X2APIC {
			b.LocalX2APICNMI(0, 0xffffffff, 1)
		} else {
			b.LocalAPICNMI(0xff, 0, 1)
		}
	}

	for i, rec := range cfg.ExtraRecords {
		payload, err := hex.DecodeString(rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("tablegen: extra record %d: %w", i, err)
		}
		if len(payload) > 253 {
			return nil, fmt.Errorf("tablegen: extra record %d: payload of %d bytes does not fit a record", i, len(payload))
		}
		b.Record(rec.Type, payload)
	}

	return b.Bytes(), nil
}

// BuildImage lays out an RSDP, a root table, a FADT, a DSDT and a MADT inside
// a zero-filled memory image.
func BuildImage(cfg Config) (*Image, error) {
	cfg.normalize()

	end := cfg.Base + cfg.Size
	if cfg.RSDPAddr < cfg.Base || cfg.RSDPAddr+36 > end {
		return nil, fmt.Errorf("tablegen: RSDP location 0x%x outside image", cfg.RSDPAddr)
	}

	madtBody, err := BuildMADTBody(cfg)
	if err != nil {
		return nil, err
	}

	oem := cfg.oem()
	w := NewWriter(cfg.TablesAddr, oem)
	img := &Image{Base: cfg.Base, RSDPAddr: cfg.RSDPAddr}

	img.DSDTAddr = w.Append(TableParams{Signature: "DSDT", Revision: 2, Body: DSDTBody()})
	img.FADTAddr = w.Append(TableParams{Signature: "FACP", Revision: 4, Body: FADTBody(cfg.ACPIRevision, img.DSDTAddr)})
	img.MADTAddr = w.Append(TableParams{Signature: "APIC", Revision: 5, Body: madtBody})

	extended := cfg.ACPIRevision >= 2
	rootSig := "RSDT"
	if extended {
		rootSig = "XSDT"
	}
	img.RootAddr = w.Append(TableParams{
		Signature: rootSig,
		Revision:  1,
		Body:      RootBody(extended, []uint64{img.FADTAddr, img.MADTAddr}),
	})

	tables := w.Bytes()
	if cfg.TablesAddr < cfg.Base || cfg.TablesAddr+uint64(len(tables)) > end {
		return nil, fmt.Errorf("tablegen: tables require %d bytes at 0x%x, outside image", len(tables), cfg.TablesAddr)
	}
	if !extended && cfg.TablesAddr+uint64(len(tables)) > 1<<32 {
		return nil, fmt.Errorf("tablegen: RSDT tables must reside below 4G")
	}

	rsdp := RSDP(cfg.ACPIRevision, img.RootAddr, oem)
	if cfg.RSDPAddr < cfg.TablesAddr+uint64(len(tables)) && cfg.TablesAddr < cfg.RSDPAddr+uint64(len(rsdp)) {
		return nil, fmt.Errorf("tablegen: RSDP overlaps the table region")
	}

	img.Data = make([]byte, cfg.Size)
	copy(img.Data[cfg.TablesAddr-cfg.Base:], tables)
	copy(img.Data[cfg.RSDPAddr-cfg.Base:], rsdp)
	return img, nil
}
