package table

import (
	"acpitopo/device/acpi/table/tablegen"
	"acpitopo/kernel"
	"testing"
)

var errUnmapped = &kernel.Error{Module: "test", Message: "address not mapped"}

// mapMapper serves tables from a map keyed by physical address.
type mapMapper map[uint64][]byte

func (m mapMapper) MapTable(addr uint64) (SDT, *kernel.Error) {
	b, ok := m[addr]
	if !ok {
		return SDT{}, errUnmapped
	}
	return NewSDT(b)
}

func TestNewRSDT(t *testing.T) {
	specs := []struct {
		sig         string
		expExtended bool
		expErr      *kernel.Error
	}{
		{SignatureRSDT, false, nil},
		{SignatureXSDT, true, nil},
		{SignatureMADT, false, errNotRootTable},
	}

	for specIndex, spec := range specs {
		sdt, err := NewSDT(tablegen.Table(spec.sig, 1, nil))
		if err != nil {
			t.Fatal(err)
		}

		rsdt, err := NewRSDT(sdt)
		if err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
			continue
		}
		if err == nil && rsdt.Extended() != spec.expExtended {
			t.Errorf("[spec %d] expected Extended() to return %t", specIndex, spec.expExtended)
		}
	}
}

func TestRSDTEntries(t *testing.T) {
	addrs := []uint64{0x1000, 0x2000, 0xdead0000}

	for _, extended := range []bool{false, true} {
		sig := SignatureRSDT
		if extended {
			sig = SignatureXSDT
		}

		// A dangling partial pointer at the end of the body must be
		// ignored.
		body := append(tablegen.RootBody(extended, addrs), 0xff, 0xff)
		sdt, err := NewSDT(tablegen.Table(sig, 1, body))
		if err != nil {
			t.Fatal(err)
		}

		rsdt, err := NewRSDT(sdt)
		if err != nil {
			t.Fatal(err)
		}

		if exp, got := len(addrs), rsdt.Len(); got != exp {
			t.Fatalf("[%s] expected %d entries; got %d", sig, exp, got)
		}

		for i, exp := range addrs {
			if got := rsdt.Entry(i); got != exp {
				t.Errorf("[%s] expected entry %d to be 0x%x; got 0x%x", sig, i, exp, got)
			}
		}

		if got := rsdt.Entry(len(addrs)); got != 0 {
			t.Errorf("[%s] expected out of range entry to be 0; got 0x%x", sig, got)
		}
		if got := rsdt.Entry(-1); got != 0 {
			t.Errorf("[%s] expected negative entry to be 0; got 0x%x", sig, got)
		}

		entries := rsdt.Entries()
		for i := range addrs {
			if entries[i] != addrs[i] {
				t.Errorf("[%s] expected Entries()[%d] to be 0x%x; got 0x%x", sig, i, addrs[i], entries[i])
			}
		}
	}
}

func TestRSDTFindTable(t *testing.T) {
	tables := mapMapper{
		0x1000: tablegen.Table("FACP", 4, make([]byte, 8)),
		0x2000: tablegen.Table("HPET", 1, make([]byte, 20)),
		0x3000: tablegen.Table("APIC", 1, tablegen.NewMADT(0xfee00000, 1).Bytes()),
		0x4000: tablegen.Table("APIC", 1, tablegen.NewMADT(0xfee10000, 0).Bytes()),
	}

	// 0x5000 is not mapped and 0 is a null slot; both must be skipped.
	body := tablegen.RootBody(true, []uint64{0, 0x5000, 0x1000, 0x2000, 0x3000, 0x4000})
	sdt, err := NewSDT(tablegen.Table(SignatureXSDT, 1, body))
	if err != nil {
		t.Fatal(err)
	}
	xsdt, err := NewRSDT(sdt)
	if err != nil {
		t.Fatal(err)
	}

	for _, sig := range []string{"FACP", "HPET", "APIC"} {
		found, ok := xsdt.FindTable(tables, sig)
		if !ok {
			t.Errorf("expected to find table %q", sig)
			continue
		}
		if got := found.Signature(); got != sig {
			t.Errorf("expected table with signature %q; got %q", sig, got)
		}
	}

	// The first matching entry wins.
	found, _ := xsdt.FindTable(tables, "APIC")
	madt, err := NewMADT(found)
	if err != nil {
		t.Fatal(err)
	}
	if exp, got := uint64(0xfee00000), madt.LocalControllerAddress(); got != exp {
		t.Errorf("expected first MADT (0x%x) to be returned; got table with 0x%x", exp, got)
	}

	if _, ok := xsdt.FindTable(tables, "SRAT"); ok {
		t.Error("expected lookup of a missing table to fail")
	}
}

func TestFindTableReturnsUnverifiedTables(t *testing.T) {
	corrupt := tablegen.Table("APIC", 1, tablegen.NewMADT(0xfee00000, 1).Bytes())
	corrupt[9]++

	sdt, _ := NewSDT(tablegen.Table(SignatureRSDT, 1, tablegen.RootBody(false, []uint64{0x1000})))
	rsdt, _ := NewRSDT(sdt)

	found, ok := rsdt.FindTable(mapMapper{0x1000: corrupt}, "APIC")
	if !ok {
		t.Fatal("expected table with a bad checksum to still be found")
	}
	if found.Valid() {
		t.Fatal("expected found table to report an invalid checksum")
	}
}

type mapResolver map[string]SDT

func (r mapResolver) LookupTable(sig string) (SDT, bool) {
	sdt, ok := r[sig]
	return sdt, ok
}

func TestLookupMADT(t *testing.T) {
	madtSDT, _ := NewSDT(tablegen.Table("APIC", 1, tablegen.NewMADT(0xfee00000, 1).Bytes()))
	shortSDT, _ := NewSDT(tablegen.Table("APIC", 1, []byte{0, 0, 0xe0}))

	if _, ok := LookupMADT(mapResolver{}); ok {
		t.Error("expected lookup to fail when no MADT is present")
	}
	if _, ok := LookupMADT(mapResolver{"APIC": shortSDT}); ok {
		t.Error("expected lookup to fail for a MADT shorter than its fixed prefix")
	}
	if _, ok := LookupMADT(mapResolver{"APIC": madtSDT}); !ok {
		t.Error("expected lookup to succeed")
	}
}
