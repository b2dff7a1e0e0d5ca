package table

import (
	"acpitopo/kernel"
	"encoding/binary"
)

const (
	// SizeofRSDP is the size of the ACPI 1.0 root system description
	// pointer.
	SizeofRSDP = 20

	// SizeofExtRSDP is the size of the ACPI 2.0+ root system description
	// pointer.
	SizeofExtRSDP = 36

	// RSDPRev1 is the RSDP revision used by ACPI 1.0 firmware. Any
	// revision >= RSDPRev2Plus provides the extended descriptor.
	RSDPRev1     uint8 = 0
	RSDPRev2Plus uint8 = 2
)

// RSDPSignature is the signature of the root system description pointer. The
// last byte is a space.
var RSDPSignature = [8]byte{'R', 'S', 'D', ' ', 'P', 'T', 'R', ' '}

var (
	errRSDPSignature = &kernel.Error{Module: "acpi", Message: "missing RSDP signature"}
	errRSDPTruncated = &kernel.Error{Module: "acpi", Message: "buffer too small for RSDP"}
	errRSDPChecksum  = &kernel.Error{Module: "acpi", Message: "RSDP checksum mismatch"}
)

// RSDP is a read-only view over a root system description pointer. It is the
// entry point for locating all other ACPI tables.
type RSDP struct {
	data []byte
}

// MatchRSDPSignature returns true if b starts with the RSDP signature.
func MatchRSDPSignature(b []byte) bool {
	if len(b) < len(RSDPSignature) {
		return false
	}
	for i, c := range RSDPSignature {
		if b[i] != c {
			return false
		}
	}
	return true
}

// ParseRSDP validates the descriptor at the start of b. For revision 0 only
// the first 20 bytes are checksummed; later revisions must also carry a valid
// extended checksum over the full 36-byte descriptor.
func ParseRSDP(b []byte) (RSDP, *kernel.Error) {
	if len(b) < SizeofRSDP {
		return RSDP{}, errRSDPTruncated
	}
	if !MatchRSDPSignature(b) {
		return RSDP{}, errRSDPSignature
	}
	if Checksum(b[:SizeofRSDP]) != 0 {
		return RSDP{}, errRSDPChecksum
	}

	if b[15] < RSDPRev2Plus {
		return RSDP{data: b[:SizeofRSDP:SizeofRSDP]}, nil
	}

	if len(b) < SizeofExtRSDP {
		return RSDP{}, errRSDPTruncated
	}
	if Checksum(b[:SizeofExtRSDP]) != 0 {
		return RSDP{}, errRSDPChecksum
	}

	return RSDP{data: b[:SizeofExtRSDP:SizeofExtRSDP]}, nil
}

// Revision returns the ACPI revision advertised by the descriptor. It is 0
// for ACPI 1.0 and 2 for versions 2.0 and later.
func (r RSDP) Revision() uint8 { return readU8(r.data, 15) }

// OEMID returns the OEM identifier.
func (r RSDP) OEMID() string {
	if len(r.data) < 15 {
		return ""
	}
	return string(r.data[9:15])
}

// RSDTAddress returns the physical address of the 32-bit RSDT.
func (r RSDP) RSDTAddress() uint32 { return readU32(r.data, 16) }

// XSDTAddress returns the physical address of the 64-bit XSDT or 0 for
// ACPI 1.0 descriptors.
func (r RSDP) XSDTAddress() uint64 {
	if len(r.data) < SizeofExtRSDP {
		return 0
	}
	return binary.LittleEndian.Uint64(r.data[24:32])
}

// Root returns the address of the root table the kernel should walk and
// whether that table is an XSDT.
func (r RSDP) Root() (addr uint64, useXSDT bool) {
	if xsdt := r.XSDTAddress(); r.Revision() >= RSDPRev2Plus && xsdt != 0 {
		return xsdt, true
	}
	return uint64(r.RSDTAddress()), false
}
