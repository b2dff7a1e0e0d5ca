// Package table provides read-only views over ACPI system description tables.
//
// Every view wraps a byte slice supplied by the caller (typically a mapping of
// firmware memory) and exposes bounds-checked accessors for the fields defined
// by ACPI. Views never copy or modify the underlying bytes.
package table

import (
	"acpitopo/kernel"
	"encoding/binary"
)

// SizeofSDTHeader is the size in bytes of the header shared by all ACPI
// system description tables.
const SizeofSDTHeader = 36

var (
	// ErrChecksumInvalid is returned by Verify when the bytes of a table do
	// not sum to zero.
	ErrChecksumInvalid = &kernel.Error{Module: "acpi", Message: "detected checksum mismatch while parsing ACPI table"}

	errTruncatedHeader = &kernel.Error{Module: "acpi", Message: "buffer too small for ACPI table header"}
	errBadTableLength  = &kernel.Error{Module: "acpi", Message: "ACPI table length smaller than its header"}
	errTruncatedTable  = &kernel.Error{Module: "acpi", Message: "ACPI table extends past the end of the mapped region"}
)

// SDTHeader holds the fields of the common ACPI table header by value.
type SDTHeader struct {
	// The signature defines the table type.
	Signature [4]byte

	// The length of the table, header included.
	Length uint32

	Revision uint8

	// A value that when added to the sum of all other bytes in the table
	// should result in the value 0.
	Checksum uint8

	// OEM specific information
	OEMID       [6]byte
	OEMTableID  [8]byte
	OEMRevision uint32

	// Information about the ASL compiler that generated this table
	CreatorID       uint32
	CreatorRevision uint32
}

// SDT is a read-only view over a single ACPI system description table. The
// zero value is an empty view that reports a zero length.
type SDT struct {
	data []byte
}

// NewSDT returns a view over the table stored at the start of b. The declared
// table length must fit inside b; the returned view is clipped to it.
func NewSDT(b []byte) (SDT, *kernel.Error) {
	if len(b) < SizeofSDTHeader {
		return SDT{}, errTruncatedHeader
	}

	length := binary.LittleEndian.Uint32(b[4:8])
	switch {
	case length < SizeofSDTHeader:
		return SDT{}, errBadTableLength
	case uint64(length) > uint64(len(b)):
		return SDT{}, errTruncatedTable
	}

	return SDT{data: b[:length:length]}, nil
}

// PeekLength returns the length field of the header at the start of b. It is
// used by mappers that must map a header before they know the table size.
func PeekLength(b []byte) (uint32, *kernel.Error) {
	if len(b) < SizeofSDTHeader {
		return 0, errTruncatedHeader
	}

	return binary.LittleEndian.Uint32(b[4:8]), nil
}

// Signature returns the 4-character table signature.
func (t SDT) Signature() string {
	if len(t.data) < SizeofSDTHeader {
		return ""
	}
	return string(t.data[0:4])
}

// Length returns the total table length including the header.
func (t SDT) Length() uint32 { return uint32(len(t.data)) }

// Revision returns the revision of the table structure.
func (t SDT) Revision() uint8 { return t.u8(8) }

// Checksum returns the raw checksum byte stored in the header.
func (t SDT) Checksum() uint8 { return t.u8(9) }

// OEMID returns the OEM identifier.
func (t SDT) OEMID() string { return t.str(10, 6) }

// OEMTableID returns the OEM table identifier.
func (t SDT) OEMTableID() string { return t.str(16, 8) }

// OEMRevision returns the OEM revision number.
func (t SDT) OEMRevision() uint32 { return t.u32(24) }

// CreatorID returns the vendor ID of the utility that created the table.
func (t SDT) CreatorID() uint32 { return t.u32(28) }

// CreatorRevision returns the revision of the utility that created the table.
func (t SDT) CreatorRevision() uint32 { return t.u32(32) }

// Header returns a copy of the header fields.
func (t SDT) Header() SDTHeader {
	var h SDTHeader
	if len(t.data) < SizeofSDTHeader {
		return h
	}

	copy(h.Signature[:], t.data[0:4])
	h.Length = t.Length()
	h.Revision = t.Revision()
	h.Checksum = t.Checksum()
	copy(h.OEMID[:], t.data[10:16])
	copy(h.OEMTableID[:], t.data[16:24])
	h.OEMRevision = t.OEMRevision()
	h.CreatorID = t.CreatorID()
	h.CreatorRevision = t.CreatorRevision()
	return h
}

// Valid returns true if the bytes of the table sum to zero.
func (t SDT) Valid() bool {
	return len(t.data) >= SizeofSDTHeader && Checksum(t.data) == 0
}

// Verify returns ErrChecksumInvalid if the table checksum does not match.
// The header fields remain readable regardless of the outcome.
func (t SDT) Verify() *kernel.Error {
	if !t.Valid() {
		return ErrChecksumInvalid
	}
	return nil
}

// body returns the bytes following the header.
func (t SDT) body() []byte {
	if len(t.data) < SizeofSDTHeader {
		return nil
	}
	return t.data[SizeofSDTHeader:]
}

func (t SDT) u8(off int) uint8 { return readU8(t.data, off) }

func (t SDT) u32(off int) uint32 { return readU32(t.data, off) }

func (t SDT) str(off, n int) string {
	if off+n > len(t.data) {
		return ""
	}
	return string(t.data[off : off+n])
}

// Checksum returns the byte-wise sum of b modulo 256.
func Checksum(b []byte) uint8 {
	var sum uint8
	for _, v := range b {
		sum += v
	}
	return sum
}

// The read helpers below return zero for fields that fall outside b. They
// are the only place where table bytes are decoded.

func readU8(b []byte, off int) uint8 {
	if off < 0 || off >= len(b) {
		return 0
	}
	return b[off]
}

func readU16(b []byte, off int) uint16 {
	if off < 0 || off+2 > len(b) {
		return 0
	}
	return binary.LittleEndian.Uint16(b[off:])
}

func readU32(b []byte, off int) uint32 {
	if off < 0 || off+4 > len(b) {
		return 0
	}
	return binary.LittleEndian.Uint32(b[off:])
}

func readU64(b []byte, off int) uint64 {
	if off < 0 || off+8 > len(b) {
		return 0
	}
	return binary.LittleEndian.Uint64(b[off:])
}
