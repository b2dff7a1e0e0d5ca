package table

import "acpitopo/kernel"

var errNotFADT = &kernel.Error{Module: "acpi", Message: "table is not a FADT"}

// Field offsets inside the Fixed ACPI Description Table.
const (
	fadtDSDTOffset  = 40
	fadtXDSDTOffset = 140
)

// FADT is a view over the Fixed ACPI Description Table. Only the fields
// required to locate the DSDT are exposed; the DSDT is not listed in the
// RSDT/XSDT and can only be reached through the FADT.
type FADT struct {
	SDT
}

// NewFADT wraps sdt as a FADT.
func NewFADT(sdt SDT) (FADT, *kernel.Error) {
	if sdt.Signature() != SignatureFADT {
		return FADT{}, errNotFADT
	}
	return FADT{SDT: sdt}, nil
}

// DSDTAddress returns the physical address of the DSDT. For ACPI 2.0+
// systems the 64-bit X_DSDT field takes precedence when it is populated.
func (f FADT) DSDTAddress(acpiRev uint8) uint64 {
	if acpiRev >= RSDPRev2Plus {
		if addr := readU64(f.data, fadtXDSDTOffset); addr != 0 {
			return addr
		}
	}
	return uint64(readU32(f.data, fadtDSDTOffset))
}
