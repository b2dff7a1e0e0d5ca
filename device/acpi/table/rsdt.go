package table

import "acpitopo/kernel"

// Table signatures used by the table walker.
const (
	SignatureRSDT = "RSDT"
	SignatureXSDT = "XSDT"
	SignatureMADT = "APIC"
	SignatureFADT = "FACP"
	SignatureDSDT = "DSDT"
)

var errNotRootTable = &kernel.Error{Module: "acpi", Message: "table is neither an RSDT nor an XSDT"}

// Mapper is implemented by objects that can make the table stored at a
// physical address accessible. The returned view must cover the full table
// length declared in its header.
type Mapper interface {
	MapTable(physAddr uint64) (SDT, *kernel.Error)
}

// Resolver is implemented by objects that can look up an ACPI table by its
// signature. LookupTable returns false if no such table exists; absence of
// an optional table is not an error.
type Resolver interface {
	LookupTable(signature string) (SDT, bool)
}

// RSDT is a view over a root system description table. The RSDT stores
// 4-byte physical addresses; its extended XSDT variant stores 8-byte ones.
type RSDT struct {
	SDT

	width int
}

// NewRSDT wraps sdt as a root table. The pointer width is selected by the
// table signature.
func NewRSDT(sdt SDT) (RSDT, *kernel.Error) {
	switch sdt.Signature() {
	case SignatureRSDT:
		return RSDT{SDT: sdt, width: 4}, nil
	case SignatureXSDT:
		return RSDT{SDT: sdt, width: 8}, nil
	default:
		return RSDT{}, errNotRootTable
	}
}

// Extended returns true if this is an XSDT.
func (r RSDT) Extended() bool { return r.width == 8 }

// Len returns the number of table pointers stored in the table. Trailing
// bytes that do not form a complete pointer are ignored.
func (r RSDT) Len() int {
	if r.width == 0 {
		return 0
	}
	return len(r.body()) / r.width
}

// Entry returns the physical address stored in slot i. It returns 0 for
// out-of-range slots.
func (r RSDT) Entry(i int) uint64 {
	if i < 0 || i >= r.Len() {
		return 0
	}

	off := SizeofSDTHeader + i*r.width
	if r.width == 8 {
		return readU64(r.data, off)
	}
	return uint64(readU32(r.data, off))
}

// Entries returns all table pointers in on-disk order.
func (r RSDT) Entries() []uint64 {
	entries := make([]uint64, r.Len())
	for i := range entries {
		entries[i] = r.Entry(i)
	}
	return entries
}

// FindTable maps each referenced table in order and returns the first one
// whose signature matches. Entries that cannot be mapped are skipped. The
// returned table is not checksum-verified; callers decide whether to trust it.
func (r RSDT) FindTable(m Mapper, signature string) (SDT, bool) {
	for i, n := 0, r.Len(); i < n; i++ {
		addr := r.Entry(i)
		if addr == 0 {
			continue
		}

		sdt, err := m.MapTable(addr)
		if err != nil {
			continue
		}

		if sdt.Signature() == signature {
			return sdt, true
		}
	}

	return SDT{}, false
}

// LookupMADT resolves the MADT through r.
func LookupMADT(r Resolver) (MADT, bool) {
	sdt, ok := r.LookupTable(SignatureMADT)
	if !ok {
		return MADT{}, false
	}

	madt, err := NewMADT(sdt)
	if err != nil {
		return MADT{}, false
	}

	return madt, true
}
