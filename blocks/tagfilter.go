package blocks

import (
	"errors"

	"github.com/sbl8/sigflow/core"
	"github.com/sbl8/sigflow/runtime"
)

// TagFilter passes items through unchanged and drops every tag with the
// configured key.
type TagFilter struct {
	*runtime.Block
	key     string
	removed int
}

func NewTagFilter(ids *core.IDAllocator, key string) (runtime.Processor, error) {
	if key == "" {
		return nil, errors.New("tag_filter: key is required")
	}
	f := &TagFilter{
		Block: runtime.NewBlock(ids, "tag_filter", core.NewIOSignature(1, 1, 4), core.NewIOSignature(1, 1, 4)),
		key:   key,
	}
	f.SetTagPropagationPolicy(runtime.TagPropagateAllToAll)
	return runtime.NewSync(f), nil
}

func (f *TagFilter) Work(io *runtime.WorkIO) (int, error) {
	n := io.NoutputItems
	start := f.NitemsRead(0)
	for _, t := range f.TagsInRange(0, start, start+uint64(n), f.key) {
		f.RemoveItemTag(0, t)
		f.removed++
	}
	copy(io.Outputs[0][:n*4], io.Inputs[0])
	return n, nil
}

// Removed returns how many tags the filter has dropped.
func (f *TagFilter) Removed() int { return f.removed }
