// Package kernels provides the float32 inner loops used by sigflow blocks.
//
// Stream windows arrive as raw bytes; Float32s reinterprets them without
// copying, so every kernel works directly on buffer memory with zero
// allocations. Loops are unrolled by four, which the compiler turns into
// straight-line code the CPU can pipeline.
//
// Available operations:
//   - Element-wise: Add, AddInPlace, Mul, Scale
//   - Reductions: Dot
//   - Pointwise maps, looked up by name: relu, sigmoid, tanh, sqr_plus_x, abs
package kernels

import (
	"fmt"
	"math"
	"sort"
	"unsafe"
)

// Float32s reinterprets b as float32 values. len(b) is truncated to a whole
// number of values. b must be 4-byte aligned, which every stream window is.
func Float32s(b []byte) []float32 {
	n := len(b) / 4
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), n)
}

const unrollFactor = 4

// Add writes a[i]+b[i] into dst. All three must have the same length.
func Add(dst, a, b []float32) {
	n := len(dst)
	a, b = a[:n], b[:n]
	i := 0
	for ; i <= n-unrollFactor; i += unrollFactor {
		dst[i] = a[i] + b[i]
		dst[i+1] = a[i+1] + b[i+1]
		dst[i+2] = a[i+2] + b[i+2]
		dst[i+3] = a[i+3] + b[i+3]
	}
	for ; i < n; i++ {
		dst[i] = a[i] + b[i]
	}
}

// AddInPlace adds b into a.
func AddInPlace(a, b []float32) {
	Add(a, a, b)
}

// Mul writes a[i]*b[i] into dst.
func Mul(dst, a, b []float32) {
	n := len(dst)
	a, b = a[:n], b[:n]
	for i := range dst {
		dst[i] = a[i] * b[i]
	}
}

// Scale writes k*src[i] into dst.
func Scale(dst, src []float32, k float32) {
	src = src[:len(dst)]
	i := 0
	for ; i <= len(dst)-unrollFactor; i += unrollFactor {
		dst[i] = k * src[i]
		dst[i+1] = k * src[i+1]
		dst[i+2] = k * src[i+2]
		dst[i+3] = k * src[i+3]
	}
	for ; i < len(dst); i++ {
		dst[i] = k * src[i]
	}
}

// Dot returns the inner product of a and b over len(b) values.
func Dot(a, b []float32) float32 {
	a = a[:len(b)]
	var s0, s1, s2, s3 float32
	i := 0
	for ; i <= len(b)-unrollFactor; i += unrollFactor {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < len(b); i++ {
		s0 += a[i] * b[i]
	}
	return (s0 + s1) + (s2 + s3)
}

// MapFn transforms one value.
type MapFn func(float32) float32

var maps = map[string]MapFn{
	"relu": func(x float32) float32 {
		if x < 0 {
			return 0
		}
		return x
	},
	// x / (1 + |x|)
	"sigmoid": func(x float32) float32 {
		if x >= 0 {
			return x / (1 + x)
		}
		return x / (1 - x)
	},
	// rational approximation, exact at 0, within 2% on [-3, 3]
	"tanh": func(x float32) float32 {
		x2 := x * x
		return x * (27 + x2) / (27 + 9*x2)
	},
	"sqr_plus_x": func(x float32) float32 { return x*x + x },
	"abs": func(x float32) float32 {
		return math.Float32frombits(math.Float32bits(x) &^ (1 << 31))
	},
}

// Lookup returns the pointwise map registered under name.
func Lookup(name string) (MapFn, error) {
	fn, ok := maps[name]
	if !ok {
		return nil, fmt.Errorf("unknown map %q, have %v", name, MapNames())
	}
	return fn, nil
}

// MapNames lists the registered maps in sorted order.
func MapNames() []string {
	names := make([]string, 0, len(maps))
	for name := range maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply writes fn(src[i]) into dst.
func Apply(fn MapFn, dst, src []float32) {
	src = src[:len(dst)]
	for i := range dst {
		dst[i] = fn(src[i])
	}
}
