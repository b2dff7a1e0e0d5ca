// Package physmem provides read-only access to regions of physical memory.
package physmem

import (
	"acpitopo/kernel"
	"acpitopo/kernel/mem"
)

var (
	// ErrOutOfRange is returned when a request falls outside the memory
	// backing a Mapper.
	ErrOutOfRange = &kernel.Error{Module: "physmem", Message: "physical address range is not backed by this mapper"}

	errZeroSize = &kernel.Error{Module: "physmem", Message: "cannot map an empty region"}
)

// Mapper makes a physical memory region accessible as a byte slice. The
// returned slice is exactly size bytes long and must be treated as
// read-only.
type Mapper interface {
	Map(addr uintptr, size mem.Size) ([]byte, *kernel.Error)
}

// Image is a Mapper backed by a byte slice that is placed at a fixed
// physical base address. It is used for firmware dumps and synthetic
// table images.
type Image struct {
	base uintptr
	data []byte
}

// NewImage returns an Image whose first byte lives at physical address base.
func NewImage(base uintptr, data []byte) *Image {
	return &Image{base: base, data: data}
}

// Base returns the physical address of the first byte of the image.
func (img *Image) Base() uintptr { return img.base }

// Size returns the number of bytes in the image.
func (img *Image) Size() mem.Size { return mem.Size(len(img.data)) }

// Map returns the slice of the image covering [addr, addr+size).
func (img *Image) Map(addr uintptr, size mem.Size) ([]byte, *kernel.Error) {
	if size == 0 {
		return nil, errZeroSize
	}

	if addr < img.base {
		return nil, ErrOutOfRange
	}

	off := uint64(addr - img.base)
	end := off + uint64(size)
	if end < off || end > uint64(len(img.data)) {
		return nil, ErrOutOfRange
	}

	return img.data[off:end:end], nil
}
