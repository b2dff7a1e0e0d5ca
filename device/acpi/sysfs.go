package acpi

import (
	"acpitopo/device/acpi/table"
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Default locations of the firmware interfaces exported by linux.
const (
	SysfsTablesDir = "/sys/firmware/acpi/tables"
	EFISystabPath  = "/sys/firmware/efi/systab"
)

// sysfsTable describes a table file exported by the kernel. Tables sharing a
// signature are exported as SSDT1, SSDT2 and so on.
type sysfsTable struct {
	signature string
	instance  int
	path      string
}

// SysfsResolver serves tables from the copies the linux kernel exports
// under /sys/firmware/acpi/tables. Table contents are read on first use.
type SysfsResolver struct {
	tables []sysfsTable
	cache  map[string]table.SDT
}

// NewSysfsResolver indexes the table files found in dir. An empty dir
// selects SysfsTablesDir.
func NewSysfsResolver(dir string) (*SysfsResolver, error) {
	if dir == "" {
		dir = SysfsTablesDir
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("acpi: reading table directory: %w", err)
	}

	r := &SysfsResolver{cache: make(map[string]table.SDT)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		sig, instance, ok := splitTableName(entry.Name())
		if !ok {
			continue
		}

		r.tables = append(r.tables, sysfsTable{
			signature: sig,
			instance:  instance,
			path:      filepath.Join(dir, entry.Name()),
		})
	}

	sort.SliceStable(r.tables, func(i, j int) bool {
		if r.tables[i].signature != r.tables[j].signature {
			return r.tables[i].signature < r.tables[j].signature
		}
		return r.tables[i].instance < r.tables[j].instance
	})

	return r, nil
}

// splitTableName separates a sysfs file name into the table signature and
// the instance number. Unnumbered files are instance 0.
func splitTableName(name string) (string, int, bool) {
	if len(name) < 4 {
		return "", 0, false
	}

	sig, suffix := name[:4], name[4:]
	if suffix == "" {
		return sig, 0, true
	}

	instance, err := strconv.Atoi(suffix)
	if err != nil || instance < 0 {
		return "", 0, false
	}

	return sig, instance, true
}

// Signatures returns the signature of every exported table, including
// duplicates, sorted by signature and instance.
func (r *SysfsResolver) Signatures() []string {
	sigs := make([]string, 0, len(r.tables))
	for _, t := range r.tables {
		sigs = append(sigs, t.signature)
	}
	return sigs
}

// Tables reads every exported table and describes it. Files that do not hold
// a well-formed table are skipped. Sysfs does not reveal physical addresses so
// Address is always 0.
func (r *SysfsResolver) Tables() []TableInfo {
	var tables []TableInfo
	for _, t := range r.tables {
		data, err := os.ReadFile(t.path)
		if err != nil {
			continue
		}

		sdt, kerr := table.NewSDT(data)
		if kerr != nil {
			continue
		}

		tables = append(tables, TableInfo{
			Signature:  sdt.Signature(),
			Length:     sdt.Length(),
			Revision:   sdt.Revision(),
			OEMID:      sdt.OEMID(),
			OEMTableID: sdt.OEMTableID(),
			Valid:      sdt.Valid(),
		})
	}
	return tables
}

// LookupTable returns the lowest-numbered instance of the table with the
// given signature. Files that cannot be read or that do not hold a well-formed
// table are treated as absent.
func (r *SysfsResolver) LookupTable(signature string) (table.SDT, bool) {
	if sdt, ok := r.cache[signature]; ok {
		return sdt, true
	}

	for _, t := range r.tables {
		if t.signature != signature {
			continue
		}

		data, err := os.ReadFile(t.path)
		if err != nil {
			return table.SDT{}, false
		}

		sdt, kerr := table.NewSDT(data)
		if kerr != nil || sdt.Signature() != signature {
			return table.SDT{}, false
		}

		r.cache[signature] = sdt
		return sdt, true
	}

	return table.SDT{}, false
}

// RSDPFromEFISystab returns the RSDP address published in the EFI system
// table file. The ACPI 2.0 entry is preferred over the ACPI 1.0 one.
func RSDPFromEFISystab(path string) (uintptr, error) {
	if path == "" {
		path = EFISystabPath
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("acpi: reading EFI system table: %w", err)
	}
	defer f.Close()

	var acpi1, acpi2 uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}

		var dst *uint64
		switch key {
		case "ACPI20":
			dst = &acpi2
		case "ACPI":
			dst = &acpi1
		default:
			continue
		}

		if *dst, err = strconv.ParseUint(value, 0, 64); err != nil {
			return 0, fmt.Errorf("acpi: parsing %s entry: %w", key, err)
		}
	}

	if err = scanner.Err(); err != nil {
		return 0, fmt.Errorf("acpi: reading EFI system table: %w", err)
	}

	switch {
	case acpi2 != 0:
		return uintptr(acpi2), nil
	case acpi1 != 0:
		return uintptr(acpi1), nil
	default:
		return 0, fmt.Errorf("acpi: no ACPI entry in %s", path)
	}
}
