// Package mm provides page frame arithmetic for the page size of the host.
package mm

import "os"

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by FrameRange when the requested region
	// wraps around the address space.
	InvalidFrame = ^Frame(0)
)

var (
	// PageShift is equal to log2(PageSize). It is used when we need to
	// convert a physical address to a frame number (shift right by
	// PageShift) and vice-versa.
	PageShift = pageShift(uintptr(os.Getpagesize()))

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1) << PageShift
)

func pageShift(size uintptr) uintptr {
	var shift uintptr
	for uintptr(1)<<shift < size {
		shift++
	}
	return shift
}

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns a Frame that corresponds to the given physical
// address. This function can handle both page-aligned and not aligned
// addresses. In the latter case, the input address will be rounded down to
// the frame that contains it.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(PageSize - 1)) >> PageShift)
}

// FrameRange returns the first frame and the number of frames spanned by the
// region [physAddr, physAddr+size). It returns InvalidFrame if the region
// wraps around the address space.
func FrameRange(physAddr, size uintptr) (Frame, uintptr) {
	end := physAddr + size
	if end < physAddr {
		return InvalidFrame, 0
	}

	first := FrameFromAddress(physAddr)
	if size == 0 {
		return first, 0
	}
	return first, uintptr(FrameFromAddress(end-1)-first) + 1
}
