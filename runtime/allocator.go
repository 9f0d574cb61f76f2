package runtime

import (
	"errors"
	"fmt"

	"github.com/sbl8/sigflow/core"
)

// LargeReserveItems is the input reserve above which a stream is always
// double-mapped, since a linear window could not hold it near the wrap.
const LargeReserveItems = core.LargeOutputMultiple

// streamBuffer is the memory behind one input stream.
type streamBuffer interface {
	bytes() []byte // at least size() bytes; 2*size() when circular
	size() int
	circular() bool
	Close() error
}

// bufferPlan records how one input stream will be backed.
type bufferPlan struct {
	name     string
	itemSize int
	items    int
	preload  int
	circular bool
}

func (p bufferPlan) sizeBytes() int { return p.items * p.itemSize }

// planBuffer decides the kind and capacity of the buffer feeding an input
// port. writerMultiple is the output multiple of the upstream port.
//
// Circular buffers are chosen when the port keeps history, when its reserve
// is large, or when forced. Their byte length is a multiple of both the page
// size and the item size. Linear capacities are a multiple of the reader's
// reserve and the writer's multiple, so a window truncated at the physical end
// still holds whole batches.
func planBuffer(name string, cfg core.PortConfig, writerMultiple int, opts EngineOptions) (bufferPlan, error) {
	if cfg.ItemSize <= 0 {
		return bufferPlan{}, fmt.Errorf("%w: %s has item size %d", core.ErrAllocation, name, cfg.ItemSize)
	}
	reserve := max(cfg.ReserveItems, 1)
	writerMultiple = max(writerMultiple, 1)

	items := opts.BufferItems
	items = max(items, 2*(reserve+cfg.PreloadItems), 2*writerMultiple)

	plan := bufferPlan{
		name:     name,
		itemSize: cfg.ItemSize,
		preload:  cfg.PreloadItems,
		circular: opts.ForceDoubleMapped || cfg.PreloadItems > 0 || cfg.ReserveItems > LargeReserveItems,
	}

	if plan.circular {
		granule := core.LCM(pageSize(), cfg.ItemSize)
		plan.items = core.RoundUp(items*cfg.ItemSize, granule) / cfg.ItemSize
	} else {
		plan.items = core.RoundUp(items, core.LCM(reserve, writerMultiple))
	}
	return plan, nil
}

// allocateBuffers backs every plan. Linear plans share one arena; circular
// plans get their own mappings. On error everything already mapped is
// released.
func allocateBuffers(plans []bufferPlan) ([]streamBuffer, *Arena, error) {
	var requests []ArenaRequest
	for _, p := range plans {
		if !p.circular {
			requests = append(requests, ArenaRequest{Name: p.name, Size: uintptr(p.sizeBytes())})
		}
	}

	var arena *Arena
	if len(requests) > 0 {
		var err error
		arena, err = NewArena(0, requests)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", core.ErrAllocation, err)
		}
	}

	buffers := make([]streamBuffer, 0, len(plans))
	for _, p := range plans {
		if !p.circular {
			mem, err := arena.Slice(p.name)
			if err != nil {
				return nil, nil, errors.Join(fmt.Errorf("%w: %v", core.ErrAllocation, err), closeBuffers(buffers))
			}
			buffers = append(buffers, &linearBuffer{mem: mem})
			continue
		}
		cb, err := newCircularBuffer(p.sizeBytes())
		if err != nil {
			return nil, nil, errors.Join(fmt.Errorf("stream %s: %w", p.name, err), closeBuffers(buffers))
		}
		buffers = append(buffers, cb)
	}
	return buffers, arena, nil
}

func closeBuffers(buffers []streamBuffer) error {
	var errs []error
	for _, b := range buffers {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
