package physmem

import (
	"acpitopo/kernel"
	"acpitopo/kernel/mem"
	"acpitopo/kernel/mm"
	"os"

	"golang.org/x/sys/unix"
)

// DevMemPath is the character device exposing physical memory on linux.
const DevMemPath = "/dev/mem"

var (
	errDevMemOpen = &kernel.Error{Module: "physmem", Message: "could not open physical memory device"}
	errDevMemMap  = &kernel.Error{Module: "physmem", Message: "mmap of physical memory failed"}

	mmapFn   = unix.Mmap
	munmapFn = unix.Munmap
)

// mapping is a live read-only mapping of count frames starting at first.
type mapping struct {
	first  mm.Frame
	count  uintptr
	region []byte
}

func (m *mapping) covers(first mm.Frame, count uintptr) bool {
	return first >= m.first && uintptr(first-m.first)+count <= m.count
}

// DevMem maps regions of /dev/mem into the process address space. Requests
// are served from an existing mapping when one covers the requested frames;
// otherwise a new page-aligned read-only shared mapping is created. All
// mappings stay alive until Close is invoked.
type DevMem struct {
	f        *os.File
	mappings []*mapping
}

// OpenDevMem opens the physical memory device at path. An empty path selects
// DevMemPath.
func OpenDevMem(path string) (*DevMem, *kernel.Error) {
	if path == "" {
		path = DevMemPath
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &kernel.Error{Module: "physmem", Message: errDevMemOpen.Message + ": " + err.Error()}
	}

	return &DevMem{f: f}, nil
}

// Map returns a view of [addr, addr+size).
func (d *DevMem) Map(addr uintptr, size mem.Size) ([]byte, *kernel.Error) {
	if size == 0 {
		return nil, errZeroSize
	}

	first, count := mm.FrameRange(addr, uintptr(size))
	if !first.Valid() || uint64(uintptr(size)) != uint64(size) {
		return nil, ErrOutOfRange
	}

	var m *mapping
	for _, candidate := range d.mappings {
		if candidate.covers(first, count) {
			m = candidate
			break
		}
	}

	if m == nil {
		region, err := mmapFn(int(d.f.Fd()), int64(first.Address()), int(count*mm.PageSize), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			return nil, &kernel.Error{Module: "physmem", Message: errDevMemMap.Message + ": " + err.Error()}
		}

		m = &mapping{first: first, count: count, region: region}
		d.mappings = append(d.mappings, m)
	}

	off := addr - m.first.Address()
	end := off + uintptr(size)
	return m.region[off:end:end], nil
}

// Mappings returns the number of live mappings.
func (d *DevMem) Mappings() int { return len(d.mappings) }

// Close releases all mappings and closes the underlying device.
func (d *DevMem) Close() error {
	for _, m := range d.mappings {
		_ = munmapFn(m.region)
	}
	d.mappings = nil

	return d.f.Close()
}
