package acpi

import (
	"acpitopo/device"
	"acpitopo/device/acpi/physmem"
	"acpitopo/device/acpi/table"
	"acpitopo/device/acpi/table/tablegen"
	"acpitopo/kernel"
	"acpitopo/kernel/mem"
	"bytes"
	"strings"
	"testing"
)

var errFailingMap = &kernel.Error{Module: "test", Message: "map failed"}

// failingMapper fails any request that starts at failAddr.
type failingMapper struct {
	physmem.Mapper
	failAddr uintptr
}

func (m failingMapper) Map(addr uintptr, size mem.Size) ([]byte, *kernel.Error) {
	if addr == m.failAddr {
		return nil, errFailingMap
	}
	return m.Mapper.Map(addr, size)
}

func genTestImage(t *testing.T, cfg tablegen.Config) (*tablegen.Image, *physmem.Image) {
	t.Helper()

	img, err := tablegen.BuildImage(cfg)
	if err != nil {
		t.Fatal(err)
	}

	return img, physmem.NewImage(uintptr(img.Base), img.Data)
}

func TestProbe(t *testing.T) {
	defer func(m physmem.Mapper, addr uintptr, keep bool) {
		physMem, rsdpAddress, keepInvalidTables = m, addr, keep
	}(physMem, rsdpAddress, keepInvalidTables)

	t.Run("registered", func(t *testing.T) {
		var found bool
		for _, info := range device.DriverList() {
			if info.Order == device.DetectOrderACPI {
				found = true
			}
		}

		if !found {
			t.Fatal("expected the ACPI driver to be registered at DetectOrderACPI")
		}
	})

	t.Run("no physical memory", func(t *testing.T) {
		SetPhysicalMemory(nil)
		if drv := probeForACPI(); drv != nil {
			t.Fatal("expected ACPI probe to fail")
		}
	})

	t.Run("ACPI1", func(t *testing.T) {
		img, m := genTestImage(t, tablegen.Config{ACPIRevision: 0})
		SetPhysicalMemory(m)
		SetRSDPAddress(0)

		drv := probeForACPI()
		if drv == nil {
			t.Fatal("ACPI probe failed")
		}

		drv.DriverName()
		drv.DriverVersion()

		acpiDrv := drv.(*Driver)
		rootAddr, useXSDT := acpiDrv.RootTable()
		if rootAddr != img.RootAddr {
			t.Fatalf("expected probed RSDT address to be 0x%x; got 0x%x", img.RootAddr, rootAddr)
		}

		if exp := false; useXSDT != exp {
			t.Fatal("expected probe to locate the RSDT and not the XSDT")
		}

		if exp, got := table.RSDPRev1, acpiDrv.ACPIRevision(); got != exp {
			t.Fatalf("expected ACPI revision %d; got %d", exp, got)
		}
	})

	t.Run("ACPI2+", func(t *testing.T) {
		img, m := genTestImage(t, tablegen.Config{ACPIRevision: 2})
		SetPhysicalMemory(m)
		SetRSDPAddress(0)
		SetKeepInvalidTables(true)
		defer SetKeepInvalidTables(false)

		drv := probeForACPI()
		if drv == nil {
			t.Fatal("ACPI probe failed")
		}

		acpiDrv := drv.(*Driver)
		rootAddr, useXSDT := acpiDrv.RootTable()
		if rootAddr != img.RootAddr {
			t.Fatalf("expected probed XSDT address to be 0x%x; got 0x%x", img.RootAddr, rootAddr)
		}

		if exp := true; useXSDT != exp {
			t.Fatal("expected probe to locate the XSDT and not the RSDT")
		}

		if !acpiDrv.KeepInvalid {
			t.Fatal("expected probed driver to keep invalid tables")
		}
	})

	t.Run("RSDP address supplied by the boot protocol", func(t *testing.T) {
		// Place the RSDP outside the BIOS area so a scan cannot find it.
		img, m := genTestImage(t, tablegen.Config{
			ACPIRevision: 2,
			RSDPAddr:     0x2000,
			TablesAddr:   0x3000,
		})
		SetPhysicalMemory(m)

		SetRSDPAddress(0)
		if drv := probeForACPI(); drv != nil {
			t.Fatal("expected RSDP scan to fail")
		}

		SetRSDPAddress(uintptr(img.RSDPAddr))
		drv := probeForACPI()
		if drv == nil {
			t.Fatal("ACPI probe failed")
		}

		if rootAddr, _ := drv.(*Driver).RootTable(); rootAddr != img.RootAddr {
			t.Fatalf("expected probed XSDT address to be 0x%x; got 0x%x", img.RootAddr, rootAddr)
		}
	})

	t.Run("RSDP checksum mismatch", func(t *testing.T) {
		for _, rev := range []uint8{0, 2} {
			img, m := genTestImage(t, tablegen.Config{ACPIRevision: rev})

			// Corrupt the root table address; both checksums now fail.
			img.Data[img.RSDPAddr-img.Base+16]++
			SetPhysicalMemory(m)
			SetRSDPAddress(0)

			if drv := probeForACPI(); drv != nil {
				t.Fatalf("[rev %d] expected ACPI probe to fail", rev)
			}
		}
	})

	t.Run("error mapping rsdp memory block", func(t *testing.T) {
		SetPhysicalMemory(physmem.NewImage(0, make([]byte, 0x1000)))
		SetRSDPAddress(0)

		if drv := probeForACPI(); drv != nil {
			t.Fatal("expected ACPI probe to fail")
		}

		SetRSDPAddress(0x2000)
		if drv := probeForACPI(); drv != nil {
			t.Fatal("expected ACPI probe to fail")
		}
	})
}

func TestDriverInit(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		for _, rev := range []uint8{0, 2} {
			img, m := genTestImage(t, tablegen.Config{ACPIRevision: rev, NumCPUs: 2})

			drv, err := NewDriver(m, 0)
			if err != nil {
				t.Fatal(err)
			}

			var buf bytes.Buffer
			if err = drv.DriverInit(&buf); err != nil {
				t.Fatal(err)
			}

			specs := []struct {
				sig  string
				addr uint64
			}{
				{table.SignatureFADT, img.FADTAddr},
				{table.SignatureDSDT, img.DSDTAddr},
				{table.SignatureMADT, img.MADTAddr},
			}

			tables := drv.Tables()
			if exp, got := len(specs), len(tables); got != exp {
				t.Fatalf("[rev %d] expected %d tables; got %d", rev, exp, got)
			}

			for specIndex, spec := range specs {
				if tables[specIndex].Signature != spec.sig || tables[specIndex].Address != spec.addr {
					t.Errorf("[rev %d] expected table %d to be %s at 0x%x; got %s at 0x%x",
						rev, specIndex, spec.sig, spec.addr, tables[specIndex].Signature, tables[specIndex].Address)
				}

				if !tables[specIndex].Valid {
					t.Errorf("[rev %d] expected table %s to have a valid checksum", rev, spec.sig)
				}

				if _, ok := drv.LookupTable(spec.sig); !ok {
					t.Errorf("[rev %d] expected LookupTable(%q) to succeed", rev, spec.sig)
				}

				if !strings.Contains(buf.String(), spec.sig+" at 0x") {
					t.Errorf("[rev %d] expected table info output for %s; got:\n%s", rev, spec.sig, buf.String())
				}
			}

			if _, ok := drv.LookupTable("SSDT"); ok {
				t.Errorf("[rev %d] expected lookup for missing table to fail", rev)
			}
		}
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		img, m := genTestImage(t, tablegen.Config{ACPIRevision: 2})
		img.Data[img.MADTAddr-img.Base+24] ^= 0xff

		drv, err := NewDriver(m, 0)
		if err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		if err = drv.DriverInit(&buf); err != nil {
			t.Fatal(err)
		}

		if _, ok := drv.LookupTable(table.SignatureMADT); ok {
			t.Fatal("expected table with bad checksum to be skipped")
		}

		if !strings.Contains(buf.String(), "[checksum mismatch; skipping]") {
			t.Fatalf("expected checksum mismatch to be logged; got:\n%s", buf.String())
		}

		drv.KeepInvalid = true
		buf.Reset()
		if err = drv.DriverInit(&buf); err != nil {
			t.Fatal(err)
		}

		sdt, ok := drv.LookupTable(table.SignatureMADT)
		if !ok {
			t.Fatal("expected table with bad checksum to be kept")
		}

		if sdt.Valid() {
			t.Fatal("expected kept table to report an invalid checksum")
		}

		if tables := drv.Tables(); tables[len(tables)-1].Valid {
			t.Fatal("expected table info to flag the checksum mismatch")
		}
	})

	t.Run("root table checksum mismatch", func(t *testing.T) {
		img, m := genTestImage(t, tablegen.Config{ACPIRevision: 2})
		img.Data[img.RootAddr-img.Base+24] ^= 0xff

		drv, err := NewDriver(m, 0)
		if err != nil {
			t.Fatal(err)
		}

		if err = drv.DriverInit(&bytes.Buffer{}); err != table.ErrChecksumInvalid {
			t.Fatalf("expected error %v; got %v", table.ErrChecksumInvalid, err)
		}

		drv.KeepInvalid = true
		if err = drv.DriverInit(&bytes.Buffer{}); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("map errors in enumerateTables", func(t *testing.T) {
		img, m := genTestImage(t, tablegen.Config{ACPIRevision: 2})

		for _, failAddr := range []uint64{img.RootAddr, img.MADTAddr, img.DSDTAddr} {
			drv, err := NewDriver(failingMapper{Mapper: m, failAddr: uintptr(failAddr)}, 0)
			if err != nil {
				t.Fatal(err)
			}

			if err = drv.DriverInit(&bytes.Buffer{}); err != errFailingMap {
				t.Errorf("expected error %v when mapping 0x%x; got %v", errFailingMap, failAddr, err)
			}
		}
	})
}

func TestMapTable(t *testing.T) {
	img, m := genTestImage(t, tablegen.Config{ACPIRevision: 2})
	drv, err := NewDriver(m, uintptr(img.RSDPAddr))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("success", func(t *testing.T) {
		sdt, err := drv.MapTable(img.MADTAddr)
		if err != nil {
			t.Fatal(err)
		}

		if exp, got := table.SignatureMADT, sdt.Signature(); got != exp {
			t.Fatalf("expected signature %q; got %q", exp, got)
		}
	})

	t.Run("header length smaller than header", func(t *testing.T) {
		off := 0x1000
		copy(img.Data[off:], "BAD!")
		img.Data[off+4] = 8

		if _, err := drv.MapTable(img.Base + uint64(off)); err == nil {
			t.Fatal("expected MapTable to fail")
		}
	})

	t.Run("table extends past the end of memory", func(t *testing.T) {
		off := len(img.Data) - table.SizeofSDTHeader
		copy(img.Data[off:], "LONG")
		img.Data[off+5] = 1

		if _, err := drv.MapTable(img.Base + uint64(off)); err != physmem.ErrOutOfRange {
			t.Fatalf("expected error %v; got %v", physmem.ErrOutOfRange, err)
		}
	})

	t.Run("unbacked address", func(t *testing.T) {
		if _, err := drv.MapTable(img.Base + uint64(len(img.Data))); err != physmem.ErrOutOfRange {
			t.Fatalf("expected error %v; got %v", physmem.ErrOutOfRange, err)
		}
	})

	t.Run("FindTable through the root table", func(t *testing.T) {
		sdt, err := drv.MapTable(img.RootAddr)
		if err != nil {
			t.Fatal(err)
		}

		root, err := table.NewRSDT(sdt)
		if err != nil {
			t.Fatal(err)
		}

		madt, ok := root.FindTable(drv, table.SignatureMADT)
		if !ok {
			t.Fatal("expected FindTable to locate the MADT")
		}

		if exp, got := uint32(table.SizeofMADT+8+12), madt.Length(); got != exp {
			t.Fatalf("expected MADT length to be %d; got %d", exp, got)
		}

		if _, ok = root.FindTable(drv, table.SignatureDSDT); ok {
			t.Fatal("expected FindTable to miss the DSDT which is only referenced by the FADT")
		}
	})
}
