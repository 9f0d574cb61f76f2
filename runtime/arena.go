package runtime

import (
	"errors"
	"fmt"

	"github.com/sbl8/sigflow/core"
)

// ArenaRegion represents a distinct memory region within the Arena.
type ArenaRegion struct {
	Offset uintptr
	Size   uintptr
	Name   string
}

// ArenaRequest asks for one named region of Size bytes.
type ArenaRequest struct {
	Name string
	Size uintptr
}

// Arena manages a single pre-allocated byte slice that backs every linear
// stream buffer of a flowgraph. Regions are laid out once, cache-line aligned,
// in request order; the tail beyond the last region stays free.
type Arena struct {
	buffer  []byte
	regions map[string]ArenaRegion
	order   []string

	currentOffset uintptr // bump allocator
	freeTail      ArenaRegion
}

// NewArena sizes an arena for the given requests. totalSize may be 0 to use
// exactly what the requests need; otherwise it must cover them.
func NewArena(totalSize uintptr, requests []ArenaRequest) (*Arena, error) {
	if err := validateArenaInputs(totalSize, requests); err != nil {
		return nil, err
	}

	effectiveTotalSize, err := calculateEffectiveSize(totalSize, requests)
	if err != nil {
		return nil, err
	}

	arena, err := createArenaBuffer(effectiveTotalSize)
	if err != nil {
		return nil, err
	}

	return layoutArenaRegions(arena, requests, effectiveTotalSize)
}

// validateArenaInputs validates the input parameters for arena creation
func validateArenaInputs(totalSize uintptr, requests []ArenaRequest) error {
	if totalSize == 0 && len(requests) == 0 {
		return errors.New("cannot create zero-size arena with no regions")
	}
	seen := make(map[string]bool, len(requests))
	for _, r := range requests {
		if r.Size == 0 {
			return fmt.Errorf("region %q has zero size", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate region %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// calculateEffectiveSize computes the actual arena size needed
func calculateEffectiveSize(totalSize uintptr, requests []ArenaRequest) (uintptr, error) {
	minRequiredSize := calculateMinRequiredSize(requests)

	if totalSize == 0 {
		return minRequiredSize, nil
	}

	alignedUserTotalSize := core.AlignedSize(totalSize)
	if alignedUserTotalSize < minRequiredSize {
		return 0, fmt.Errorf("user-provided totalSize %d (aligned to %d) is less than minimum required size %d", totalSize, alignedUserTotalSize, minRequiredSize)
	}

	return alignedUserTotalSize, nil
}

// calculateMinRequiredSize computes the minimum size needed for all regions
func calculateMinRequiredSize(requests []ArenaRequest) uintptr {
	minRequiredSize := uintptr(0)
	for _, r := range requests {
		minRequiredSize += core.AlignedSize(r.Size)
	}
	return core.AlignedSize(minRequiredSize)
}

// createArenaBuffer allocates the arena buffer
func createArenaBuffer(effectiveTotalSize uintptr) (*Arena, error) {
	arena := &Arena{
		buffer:  core.AlignedBytes(int(effectiveTotalSize)),
		regions: make(map[string]ArenaRegion),
	}

	if arena.buffer == nil && effectiveTotalSize > 0 {
		return nil, fmt.Errorf("failed to allocate arena buffer of size %d", effectiveTotalSize)
	}

	return arena, nil
}

// layoutArenaRegions partitions the arena into regions
func layoutArenaRegions(arena *Arena, requests []ArenaRequest, effectiveTotalSize uintptr) (*Arena, error) {
	for _, r := range requests {
		if _, err := arena.allocate(r.Name, r.Size); err != nil {
			return nil, err
		}
	}
	layoutFreeTail(arena, effectiveTotalSize)
	return arena, nil
}

// layoutFreeTail sets up the remaining free space
func layoutFreeTail(arena *Arena, effectiveTotalSize uintptr) {
	currentOffset := core.AlignedSize(arena.currentOffset)
	freeTailSize := uintptr(0)
	if effectiveTotalSize > currentOffset {
		freeTailSize = effectiveTotalSize - currentOffset
	}
	arena.freeTail = ArenaRegion{Offset: currentOffset, Size: freeTailSize, Name: "FreeTail"}
}

// allocate carves a cache-line aligned region with the bump allocator.
// Not thread-safe without external locking.
func (a *Arena) allocate(name string, size uintptr) (ArenaRegion, error) {
	alignedOffset := core.AlignedSize(a.currentOffset)
	if alignedOffset+size > uintptr(len(a.buffer)) {
		return ArenaRegion{}, fmt.Errorf("arena exhausted: region %q requested %d, available %d", name, size, uintptr(len(a.buffer))-alignedOffset)
	}
	region := ArenaRegion{Offset: alignedOffset, Size: size, Name: name}
	a.regions[name] = region
	a.order = append(a.order, name)
	a.currentOffset = alignedOffset + size
	return region, nil
}

// Buffer returns the raw byte buffer of the arena.
func (a *Arena) Buffer() []byte {
	return a.buffer
}

// Region returns the specified ArenaRegion.
func (a *Arena) Region(name string) (ArenaRegion, bool) {
	region, ok := a.regions[name]
	return region, ok
}

// Regions returns region names in layout order.
func (a *Arena) Regions() []string {
	return append([]string(nil), a.order...)
}

// Slice returns the bytes of a named region.
func (a *Arena) Slice(name string) ([]byte, error) {
	region, ok := a.regions[name]
	if !ok {
		return nil, fmt.Errorf("region %s not found", name)
	}
	return a.buffer[region.Offset : region.Offset+region.Size : region.Offset+region.Size], nil
}

// TotalSize returns the total capacity of the arena's buffer.
func (a *Arena) TotalSize() uintptr {
	return uintptr(len(a.buffer))
}

// UsedSize calculates the currently "committed" size of the arena,
// up to the start of the FreeTail.
func (a *Arena) UsedSize() uintptr {
	return a.freeTail.Offset
}

// RemainingSize returns the size of the FreeTail.
func (a *Arena) RemainingSize() uintptr {
	return a.freeTail.Size
}

// ZeroRegion sets all bytes in a given region to zero.
func (a *Arena) ZeroRegion(regionName string) error {
	region, ok := a.regions[regionName]
	if !ok {
		return fmt.Errorf("region %s not found", regionName)
	}
	clear(a.buffer[region.Offset : region.Offset+region.Size])
	return nil
}

// linearBuffer is a plain region of the arena. Windows end at the physical
// end of the region.
type linearBuffer struct {
	mem []byte
}

func (l *linearBuffer) bytes() []byte  { return l.mem }
func (l *linearBuffer) size() int      { return len(l.mem) }
func (l *linearBuffer) circular() bool { return false }
func (l *linearBuffer) Close() error   { return nil }
