package core

import "fmt"

// PortConfig holds the per-port buffer requirements a block publishes to the
// allocator and the scheduler. All counts are in items, not bytes.
type PortConfig struct {
	// ItemSize is the size of one stream item in bytes.
	ItemSize int
	// ReserveItems is the minimum contiguous window the port needs before
	// the block can make progress.
	ReserveItems int
	// PreloadItems is the number of items that stay resident behind the read
	// cursor so the block can look back at them (history - 1).
	PreloadItems int
	// MaximumItems caps how many items a single call may see. 0 is unbounded.
	MaximumItems int
}

// DefaultPortConfig returns the configuration of a fresh port.
func DefaultPortConfig(itemSize int) PortConfig {
	return PortConfig{ItemSize: itemSize, ReserveItems: 1}
}

// ReserveBytes returns the reserve window size in bytes.
func (p PortConfig) ReserveBytes() int {
	return p.ReserveItems * p.ItemSize
}

// IOSignature describes how many streams a block accepts on one side and
// what item size each stream carries.
type IOSignature struct {
	MinStreams int
	MaxStreams int // < 0 means unbounded
	ItemSizes  []int
}

// Unbounded is the MaxStreams value for signatures without an upper limit.
const Unbounded = -1

// NewIOSignature builds a signature. With several sizes, port i uses
// sizes[i] and ports past the end reuse the last size.
func NewIOSignature(minStreams, maxStreams int, sizes ...int) IOSignature {
	return IOSignature{MinStreams: minStreams, MaxStreams: maxStreams, ItemSizes: sizes}
}

// ItemSize returns the item size of port i.
func (s IOSignature) ItemSize(i int) int {
	if len(s.ItemSizes) == 0 {
		return 0
	}
	if i >= len(s.ItemSizes) {
		return s.ItemSizes[len(s.ItemSizes)-1]
	}
	return s.ItemSizes[i]
}

// Check reports whether n streams satisfy the signature.
func (s IOSignature) Check(n int) error {
	if n < s.MinStreams {
		return fmt.Errorf("%w: %d streams, need at least %d", ErrTopology, n, s.MinStreams)
	}
	if s.MaxStreams >= 0 && n > s.MaxStreams {
		return fmt.Errorf("%w: %d streams, allow at most %d", ErrTopology, n, s.MaxStreams)
	}
	return nil
}
