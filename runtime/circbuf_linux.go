//go:build linux

package runtime

import (
	"fmt"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/sbl8/sigflow/core"
)

// circularBuffer maps one memfd of size bytes twice, back to back, so that any
// window of up to size bytes starting anywhere in the first copy is contiguous.
type circularBuffer struct {
	base   unsafe.Pointer
	length int
	mem    []byte
}

func pageSize() int {
	return unix.Getpagesize()
}

// newCircularBuffer reserves 2*size bytes of address space and maps the same
// shared memory object over both halves. size must be a multiple of the page
// size. There is no fallback: any failure is an allocation error.
func newCircularBuffer(size int) (*circularBuffer, error) {
	if size <= 0 || size%pageSize() != 0 {
		return nil, fmt.Errorf("%w: circular size %d is not a positive multiple of page size %d", core.ErrAllocation, size, pageSize())
	}

	base, err := unix.MmapPtr(-1, 0, nil, uintptr(2*size), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve address space: %v", core.ErrAllocation, err)
	}

	fd, err := unix.MemfdCreate("sigflow-circ-"+uuid.NewString(), unix.MFD_CLOEXEC)
	if err != nil {
		_ = unix.MunmapPtr(base, uintptr(2*size))
		return nil, fmt.Errorf("%w: memfd_create: %v", core.ErrAllocation, err)
	}
	// The mappings keep the object alive once both are in place.
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.MunmapPtr(base, uintptr(2*size))
		return nil, fmt.Errorf("%w: ftruncate: %v", core.ErrAllocation, err)
	}

	for _, half := range []unsafe.Pointer{base, unsafe.Add(base, size)} {
		got, err := unix.MmapPtr(fd, 0, half, uintptr(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_FIXED)
		if err != nil {
			_ = unix.MunmapPtr(base, uintptr(2*size))
			return nil, fmt.Errorf("%w: map half: %v", core.ErrAllocation, err)
		}
		if got != half {
			_ = unix.MunmapPtr(base, uintptr(2*size))
			return nil, fmt.Errorf("%w: kernel moved fixed mapping", core.ErrAllocation)
		}
	}

	mem := unsafe.Slice((*byte)(base), 2*size)
	clear(mem[:size])

	return &circularBuffer{base: base, length: size, mem: mem}, nil
}

func (c *circularBuffer) bytes() []byte  { return c.mem }
func (c *circularBuffer) size() int      { return c.length }
func (c *circularBuffer) circular() bool { return true }

// Close unmaps both halves. The buffer must not be used afterwards.
func (c *circularBuffer) Close() error {
	if c.base == nil {
		return nil
	}
	err := unix.MunmapPtr(c.base, uintptr(2*c.length))
	c.base = nil
	c.mem = nil
	if err != nil {
		return fmt.Errorf("unmap circular buffer: %w", err)
	}
	return nil
}
