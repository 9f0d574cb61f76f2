package blocks

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/sbl8/sigflow/core"
	"github.com/sbl8/sigflow/runtime"
)

// Factory builds one block from its parameters.
type Factory func(ids *core.IDAllocator, p Params) (runtime.Processor, error)

var factories = map[string]Factory{}

// Register makes a block kind available to Build. Registering a kind twice
// panics.
func Register(kind string, f Factory) {
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("block kind '%s' already registered", kind))
	}
	factories[kind] = f
}

// Kinds lists the registered block kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build constructs a block of the given kind, then applies the settings every
// block accepts: max_noutput_items, output_multiple and tag_policy.
func Build(ids *core.IDAllocator, kind string, p Params) (runtime.Processor, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown block kind %q", kind)
	}
	proc, err := f(ids, p)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", kind, err)
	}
	if err := applyCommon(proc.Base(), p); err != nil {
		return nil, fmt.Errorf("build %s: %w", kind, err)
	}
	slog.Debug("Built block.", "kind", kind, "alias", proc.Base().Alias())
	return proc, nil
}

func applyCommon(b *runtime.Block, p Params) error {
	if m, err := p.Int("max_noutput_items", 0); err != nil {
		return err
	} else if m > 0 {
		if err := b.SetMaxNoutputItems(m); err != nil {
			return err
		}
	}
	if m, err := p.Int("output_multiple", 0); err != nil {
		return err
	} else if m > 0 {
		if err := b.SetOutputMultiple(m); err != nil {
			return err
		}
	}
	policy, err := p.String("tag_policy", "")
	if err != nil {
		return err
	}
	switch policy {
	case "":
	case "dont":
		b.SetTagPropagationPolicy(runtime.TagPropagateDont)
	case "all_to_all":
		b.SetTagPropagationPolicy(runtime.TagPropagateAllToAll)
	case "one_to_one":
		b.SetTagPropagationPolicy(runtime.TagPropagateOneToOne)
	default:
		return fmt.Errorf("unknown tag_policy %q", policy)
	}
	return nil
}

func init() {
	Register("vector_source", func(ids *core.IDAllocator, p Params) (runtime.Processor, error) {
		data, err := p.Floats("data")
		if err != nil {
			return nil, err
		}
		repeat, err := p.Bool("repeat", false)
		if err != nil {
			return nil, err
		}
		specs, err := p.Maps("tags")
		if err != nil {
			return nil, err
		}
		var tags []core.Tag
		for _, s := range specs {
			off, err := s.Int("offset", 0)
			if err != nil {
				return nil, err
			}
			key, err := s.String("key", "")
			if err != nil {
				return nil, err
			}
			tags = append(tags, core.Tag{Offset: uint64(off), Key: key, Value: s["value"]})
		}
		return NewVectorSource(ids, data, repeat, tags)
	})
	Register("null_source", func(ids *core.IDAllocator, p Params) (runtime.Processor, error) {
		size, err := p.Int("item_size", 4)
		if err != nil {
			return nil, err
		}
		return NewNullSource(ids, size), nil
	})
	Register("vector_sink", func(ids *core.IDAllocator, _ Params) (runtime.Processor, error) {
		return NewVectorSink(ids), nil
	})
	Register("null_sink", func(ids *core.IDAllocator, p Params) (runtime.Processor, error) {
		size, err := p.Int("item_size", 4)
		if err != nil {
			return nil, err
		}
		return NewNullSink(ids, size), nil
	})
	Register("head", func(ids *core.IDAllocator, p Params) (runtime.Processor, error) {
		n, err := p.Int("n", -1)
		if err != nil {
			return nil, err
		}
		size, err := p.Int("item_size", 4)
		if err != nil {
			return nil, err
		}
		return NewHead(ids, n, size)
	})
	Register("keep_one_in_n", func(ids *core.IDAllocator, p Params) (runtime.Processor, error) {
		n, err := p.Int("n", 0)
		if err != nil {
			return nil, err
		}
		size, err := p.Int("item_size", 4)
		if err != nil {
			return nil, err
		}
		return NewKeepOneInN(ids, n, size)
	})
	Register("repeat", func(ids *core.IDAllocator, p Params) (runtime.Processor, error) {
		n, err := p.Int("interpolation", 0)
		if err != nil {
			return nil, err
		}
		size, err := p.Int("item_size", 4)
		if err != nil {
			return nil, err
		}
		return NewRepeat(ids, n, size)
	})
	Register("fir_filter", func(ids *core.IDAllocator, p Params) (runtime.Processor, error) {
		taps, err := p.Floats("taps")
		if err != nil {
			return nil, err
		}
		decim, err := p.Int("decimation", 1)
		if err != nil {
			return nil, err
		}
		return NewFIRFilter(ids, taps, decim)
	})
	Register("add", func(ids *core.IDAllocator, _ Params) (runtime.Processor, error) {
		return NewAdd(ids), nil
	})
	Register("multiply_const", func(ids *core.IDAllocator, p Params) (runtime.Processor, error) {
		k, err := p.Float("k", 1)
		if err != nil {
			return nil, err
		}
		return NewMultiplyConst(ids, float32(k)), nil
	})
	Register("map", func(ids *core.IDAllocator, p Params) (runtime.Processor, error) {
		name, err := p.String("fn", "")
		if err != nil {
			return nil, err
		}
		return NewMap(ids, name)
	})
	Register("tag_filter", func(ids *core.IDAllocator, p Params) (runtime.Processor, error) {
		key, err := p.String("key", "")
		if err != nil {
			return nil, err
		}
		return NewTagFilter(ids, key)
	})
}
