// Package tablegen assembles ACPI tables and complete firmware memory images.
// It is used to build fixtures for the table parsers and by the acpitopo tool
// to synthesize images that can be inspected like real firmware memory.
package tablegen

import (
	"bytes"
	"encoding/binary"
)

const sizeofHeader = 36

// OEMInfo mirrors the OEM fields of the ACPI table header.
type OEMInfo struct {
	OEMID           [6]byte
	OEMTableID      [8]byte
	OEMRevision     uint32
	CreatorID       [4]byte
	CreatorRevision uint32
}

// DefaultOEMInfo returns the header metadata used when a config does not
// specify its own.
func DefaultOEMInfo() OEMInfo {
	return OEMInfo{
		OEMID:           [6]byte{'A', 'C', 'P', 'I', 'T', 'P'},
		OEMTableID:      [8]byte{'A', 'C', 'P', 'I', 'T', 'O', 'P', 'O'},
		OEMRevision:     1,
		CreatorID:       [4]byte{'A', 'T', 'O', 'P'},
		CreatorRevision: 1,
	}
}

// TableParams describes a single table appended by Writer.
type TableParams struct {
	Signature  string
	Revision   uint8
	OEMTableID string
	Body       []byte
}

// Writer appends checksummed tables back to back, each aligned to 8 bytes,
// and reports the physical address at which each one will live.
type Writer struct {
	buf  bytes.Buffer
	base uint64
	oem  OEMInfo
}

// NewWriter returns a Writer whose first table is placed at physical address
// base.
func NewWriter(base uint64, oem OEMInfo) *Writer {
	return &Writer{base: base, oem: oem}
}

// Append writes a table and returns its physical address.
func (w *Writer) Append(params TableParams) uint64 {
	if pad := w.buf.Len() % 8; pad != 0 {
		w.buf.Write(make([]byte, 8-pad))
	}

	start := w.buf.Len()
	w.buf.Write(encodeTable(params, w.oem))
	return w.base + uint64(start)
}

// Bytes returns the tables written so far.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Table returns a standalone table with a valid checksum and the default OEM
// metadata.
func Table(signature string, revision uint8, body []byte) []byte {
	return encodeTable(TableParams{Signature: signature, Revision: revision, Body: body}, DefaultOEMInfo())
}

func encodeTable(params TableParams, oem OEMInfo) []byte {
	out := make([]byte, sizeofHeader+len(params.Body))
	copy(out[0:4], params.Signature)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)))
	out[8] = params.Revision
	copy(out[10:16], oem.OEMID[:])

	if params.OEMTableID != "" {
		copy(out[16:24], params.OEMTableID)
	} else {
		copy(out[16:24], oem.OEMTableID[:])
	}

	binary.LittleEndian.PutUint32(out[24:28], oem.OEMRevision)
	copy(out[28:32], oem.CreatorID[:])
	binary.LittleEndian.PutUint32(out[32:36], oem.CreatorRevision)
	copy(out[sizeofHeader:], params.Body)

	FixChecksum(out, 9)
	return out
}

// FixChecksum stores at b[offset] the value that makes the bytes of b sum to
// zero.
func FixChecksum(b []byte, offset int) {
	b[offset] = 0
	b[offset] = -sum(b)
}

func sum(b []byte) byte {
	var total byte
	for _, v := range b {
		total += v
	}
	return total
}

// RootBody returns the body of an RSDT (4-byte entries) or XSDT (8-byte
// entries) referencing the given addresses.
func RootBody(extended bool, entries []uint64) []byte {
	width := 4
	if extended {
		width = 8
	}

	body := make([]byte, width*len(entries))
	for i, addr := range entries {
		if extended {
			binary.LittleEndian.PutUint64(body[i*8:], addr)
		} else {
			binary.LittleEndian.PutUint32(body[i*4:], uint32(addr))
		}
	}
	return body
}

// RSDP returns a root system description pointer. Revision 0 produces the
// 20-byte ACPI 1.0 descriptor pointing at an RSDT; any later revision
// produces the 36-byte descriptor pointing at an XSDT.
func RSDP(revision uint8, rootAddr uint64, oem OEMInfo) []byte {
	size := 20
	if revision >= 2 {
		size = 36
	}

	rsdp := make([]byte, size)
	copy(rsdp[0:8], "RSD PTR ")
	copy(rsdp[9:15], oem.OEMID[:])
	rsdp[15] = revision

	if revision < 2 {
		binary.LittleEndian.PutUint32(rsdp[16:20], uint32(rootAddr))
		FixChecksum(rsdp, 8)
		return rsdp
	}

	binary.LittleEndian.PutUint32(rsdp[20:24], uint32(size))
	binary.LittleEndian.PutUint64(rsdp[24:32], rootAddr)
	FixChecksum(rsdp[:20], 8)
	FixChecksum(rsdp, 32)
	return rsdp
}

// FADTBody returns a FADT body whose DSDT and X_DSDT fields point at
// dsdtAddr. The X_DSDT field is only populated for revisions >= 2.
func FADTBody(revision uint8, dsdtAddr uint64) []byte {
	// 244 bytes is the ACPI 2.0 FADT size, which covers X_DSDT.
	body := make([]byte, 244-sizeofHeader)
	binary.LittleEndian.PutUint32(body[40-sizeofHeader:], uint32(dsdtAddr))
	if revision >= 2 {
		binary.LittleEndian.PutUint64(body[140-sizeofHeader:], dsdtAddr)
	}
	return body
}

// DSDTBody returns an AML body declaring an empty \_SB_ scope.
func DSDTBody() []byte {
	scope := []byte("\\_SB_")
	return append([]byte{0x10, byte(len(scope) + 1)}, scope...)
}
