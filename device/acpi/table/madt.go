package table

import "acpitopo/kernel"

// SizeofMADT is the size of the fixed MADT prefix: the common header followed
// by the local interrupt controller address and the flag word. Interrupt
// controller records start right after it.
const SizeofMADT = SizeofSDTHeader + 8

var (
	errNotMADT = &kernel.Error{Module: "acpi", Message: "table is not a MADT"}

	// ErrMalformedEntry is reported by MADTIterator.Err when a record has a
	// length of 0 or 1, or declares a length extending past the table.
	ErrMalformedEntry = &kernel.Error{Module: "acpi", Message: "MADT record length is invalid or exceeds the table"}
)

// MADTFlags is the MADT flag word. Only bit 0 is defined; bits 1-31 are
// reserved and no accessor exposes them.
type MADTFlags uint32

const madtFlagPCATCompat MADTFlags = 1 << 0

// PCATCompat returns true if the system also has a PC-AT-compatible dual
// 8259 setup that must be disabled before the APICs are used.
func (f MADTFlags) PCATCompat() bool {
	return f&madtFlagPCATCompat != 0
}

// MADT (Multiple APIC Description Table) is an ACPI table containing
// information about the interrupt controllers and the number of installed
// CPUs. Following the fixed prefix is a series of variable sized records
// that are accessed through an MADTIterator.
type MADT struct {
	SDT
}

// NewMADT wraps sdt as a MADT. The table must carry the "APIC" signature and
// be large enough to hold the fixed MADT prefix.
func NewMADT(sdt SDT) (MADT, *kernel.Error) {
	if sdt.Signature() != SignatureMADT {
		return MADT{}, errNotMADT
	}
	if sdt.Length() < SizeofMADT {
		return MADT{}, errBadTableLength
	}
	return MADT{SDT: sdt}, nil
}

// LocalControllerAddress returns the 32-bit physical address at which each
// processor can access its local interrupt controller, widened to 64 bits.
// A Local APIC Address Override record, if present, supersedes it.
func (m MADT) LocalControllerAddress() uint64 {
	return uint64(readU32(m.data, SizeofSDTHeader))
}

// Flags returns the MADT flag word.
func (m MADT) Flags() MADTFlags {
	return MADTFlags(readU32(m.data, SizeofSDTHeader+4))
}

// Entries returns a new iterator positioned at the first interrupt
// controller record. Each call returns an independent cursor.
func (m MADT) Entries() *MADTIterator {
	var body []byte
	if len(m.data) >= SizeofMADT {
		body = m.data[SizeofMADT:]
	}
	return &MADTIterator{body: body}
}

// MADTIterator walks the variable-length records that follow the MADT
// prefix. Records are yielded in table order. The iterator stops at the
// first structurally corrupt record, one whose length is below 2 or runs
// past the end of the table; Err reports why. A known record that is in
// bounds but shorter than the layout of its type is still yielded and its
// missing fields read as zero.
type MADTIterator struct {
	body   []byte
	cursor int
	done   bool
	err    *kernel.Error
}

// Next returns the next record. The second return value is false once all
// records have been consumed or a corrupt record was encountered.
func (it *MADTIterator) Next() (MADTEntry, bool) {
	if it.done || it.cursor >= len(it.body) {
		it.done = true
		return nil, false
	}

	raw, next, err := nextRecord(it.body, it.cursor)
	if err != nil {
		it.done, it.err = true, err
		return nil, false
	}

	it.cursor = next
	return decodeEntry(raw), true
}

// Err returns the error that terminated the iteration early or nil if every
// record was consumed.
func (it *MADTIterator) Err() *kernel.Error { return it.err }

// Consumed returns the number of record bytes yielded so far.
func (it *MADTIterator) Consumed() int { return it.cursor }

// Total returns the number of record bytes that follow the MADT prefix.
func (it *MADTIterator) Total() int { return len(it.body) }

// nextRecord returns the record starting at off together with the offset of
// the record that follows it. The record length must cover at least the
// record header and must not extend past the end of body; a length of 0
// would otherwise never advance the cursor.
func nextRecord(body []byte, off int) (raw []byte, next int, err *kernel.Error) {
	remaining := len(body) - off
	if remaining < sizeofEntryHeader {
		return nil, off, ErrMalformedEntry
	}

	length := int(body[off+1])
	if length < sizeofEntryHeader || length > remaining {
		return nil, off, ErrMalformedEntry
	}

	return body[off : off+length : off+length], off + length, nil
}
