package core

import (
	"math"
	"unsafe"
)

const (
	// CacheLineSize is a common cache line size, typically 64 bytes.
	// Adjust if targeting specific architectures with different cache line sizes.
	CacheLineSize = 64

	// MaxAlignment is the byte boundary a work window must start on to be
	// reported as aligned to a block. 32 bytes covers AVX loads.
	MaxAlignment = 32

	// roundEpsilon absorbs float error before a ceiling, so that 4.000000001
	// items rounds to 4 and not 5.
	roundEpsilon = 1e-9
)

// IsAligned checks if a pointer (represented as a uintptr) is aligned to a cache line boundary.
// addr is the memory address to check.
// Returns true if aligned, false otherwise.
func IsAligned(addr uintptr) bool {
	return addr%CacheLineSize == 0
}

// IsAlignedTo reports whether addr is a multiple of align. align must be > 0.
func IsAlignedTo(addr uintptr, align int) bool {
	return addr%uintptr(align) == 0
}

// AlignedSize calculates the size rounded up to the nearest cache line multiple.
// size is the original size.
// Returns the aligned size.
func AlignedSize(size uintptr) uintptr {
	return (size + uintptr(CacheLineSize-1)) & ^uintptr(CacheLineSize-1)
}

// AlignedBytes allocates a byte slice with its underlying array aligned to CacheLineSize.
// size is the desired size of the slice.
// Returns the aligned byte slice.
func AlignedBytes(size int) []byte {
	if size == 0 {
		return nil
	}
	// Allocate extra space to allow for alignment.
	buf := make([]byte, size+CacheLineSize-1)

	ptr := uintptr(unsafe.Pointer(&buf[0]))

	// If ptr is already aligned, offset will be 0.
	offset := uintptr(0)
	if mod := ptr % CacheLineSize; mod != 0 {
		offset = CacheLineSize - mod
	}

	return buf[offset : offset+uintptr(size)]
}

// AlignSize rounds size up to the specified power-of-two alignment boundary.
func AlignSize(size, align int) int {
	return (size + align - 1) &^ (align - 1)
}

// RoundUp rounds n up to the nearest multiple of m. m need not be a power of two.
func RoundUp(n, m int) int {
	if m <= 1 {
		return n
	}
	return ((n + m - 1) / m) * m
}

// RoundDown rounds n down to the nearest multiple of m.
func RoundDown(n, m int) int {
	if m <= 1 {
		return n
	}
	return (n / m) * m
}

// RoundHalfUp rounds x to the nearest integer, halves away from zero for
// positive values. Item counts derived from a rate always go through this.
func RoundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// CeilItems is a ceiling that tolerates float noise just above an integer.
func CeilItems(x float64) int {
	return int(math.Ceil(x - roundEpsilon))
}

// GCD returns the greatest common divisor of a and b.
func GCD(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// LCM returns the least common multiple of a and b, both > 0.
func LCM(a, b int) int {
	return a / GCD(a, b) * b
}
