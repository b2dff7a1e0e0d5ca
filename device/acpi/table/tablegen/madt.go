package tablegen

import (
	"bytes"
	"encoding/binary"
)

// MADTBuilder assembles a MADT body: the local interrupt controller address,
// the flag word and a sequence of interrupt controller records.
type MADTBuilder struct {
	buf bytes.Buffer
}

// NewMADT starts a MADT body with the given local APIC address and flags.
func NewMADT(lapicAddr, flags uint32) *MADTBuilder {
	b := &MADTBuilder{}
	binary.Write(&b.buf, binary.LittleEndian, lapicAddr)
	binary.Write(&b.buf, binary.LittleEndian, flags)
	return b
}

// LocalAPIC appends a Processor Local APIC record (8 bytes).
func (b *MADTBuilder) LocalAPIC(processorID, apicID uint8, flags uint32) *MADTBuilder {
	b.buf.WriteByte(0)
	b.buf.WriteByte(8)
	b.buf.WriteByte(processorID)
	b.buf.WriteByte(apicID)
	binary.Write(&b.buf, binary.LittleEndian, flags)
	return b
}

// IOAPIC appends an I/O APIC record (12 bytes).
func (b *MADTBuilder) IOAPIC(id uint8, addr, gsiBase uint32) *MADTBuilder {
	b.buf.WriteByte(1)
	b.buf.WriteByte(12)
	b.buf.WriteByte(id)
	b.buf.WriteByte(0)
	binary.Write(&b.buf, binary.LittleEndian, addr)
	binary.Write(&b.buf, binary.LittleEndian, gsiBase)
	return b
}

// InterruptOverride appends an Interrupt Source Override record (10 bytes).
func (b *MADTBuilder) InterruptOverride(bus, irq uint8, gsi uint32, flags uint16) *MADTBuilder {
	b.buf.WriteByte(2)
	b.buf.WriteByte(10)
	b.buf.WriteByte(bus)
	b.buf.WriteByte(irq)
	binary.Write(&b.buf, binary.LittleEndian, gsi)
	binary.Write(&b.buf, binary.LittleEndian, flags)
	return b
}

// NMISource appends an NMI Source record (8 bytes).
func (b *MADTBuilder) NMISource(flags uint16, gsi uint32) *MADTBuilder {
	b.buf.WriteByte(3)
	b.buf.WriteByte(8)
	binary.Write(&b.buf, binary.LittleEndian, flags)
	binary.Write(&b.buf, binary.LittleEndian, gsi)
	return b
}

// LocalAPICNMI appends a Local APIC NMI record (6 bytes).
func (b *MADTBuilder) LocalAPICNMI(processorUID uint8, flags uint16, lint uint8) *MADTBuilder {
	b.buf.WriteByte(4)
	b.buf.WriteByte(6)
	b.buf.WriteByte(processorUID)
	binary.Write(&b.buf, binary.LittleEndian, flags)
	b.buf.WriteByte(lint)
	return b
}

// LocalAPICAddrOverride appends a Local APIC Address Override record (12
// bytes).
func (b *MADTBuilder) LocalAPICAddrOverride(addr uint64) *MADTBuilder {
	b.buf.WriteByte(5)
	b.buf.WriteByte(12)
	binary.Write(&b.buf, binary.LittleEndian, uint16(0))
	binary.Write(&b.buf, binary.LittleEndian, addr)
	return b
}

// LocalX2APIC appends a Processor Local x2APIC record (16 bytes).
func (b *MADTBuilder) LocalX2APIC(x2apicID, flags, processorUID uint32) *MADTBuilder {
	b.buf.WriteByte(9)
	b.buf.WriteByte(16)
	binary.Write(&b.buf, binary.LittleEndian, uint16(0))
	binary.Write(&b.buf, binary.LittleEndian, x2apicID)
	binary.Write(&b.buf, binary.LittleEndian, flags)
	binary.Write(&b.buf, binary.LittleEndian, processorUID)
	return b
}

// LocalX2APICNMI appends a Local x2APIC NMI record (12 bytes).
func (b *MADTBuilder) LocalX2APICNMI(flags uint16, processorUID uint32, lint uint8) *MADTBuilder {
	b.buf.WriteByte(0xa)
	b.buf.WriteByte(12)
	binary.Write(&b.buf, binary.LittleEndian, flags)
	binary.Write(&b.buf, binary.LittleEndian, processorUID)
	b.buf.WriteByte(lint)
	b.buf.Write([]byte{0, 0, 0})
	return b
}

// Record appends a record of the given type whose length is derived from the
// payload size.
func (b *MADTBuilder) Record(typ uint8, payload []byte) *MADTBuilder {
	return b.RecordWithLength(typ, uint8(len(payload)+2), payload)
}

// RecordWithLength appends a record with an explicit length byte, which may
// disagree with the payload size. It is used to build corrupt tables.
func (b *MADTBuilder) RecordWithLength(typ, length uint8, payload []byte) *MADTBuilder {
	b.buf.WriteByte(typ)
	b.buf.WriteByte(length)
	b.buf.Write(payload)
	return b
}

// Bytes returns the MADT body.
func (b *MADTBuilder) Bytes() []byte {
	return b.buf.Bytes()
}
