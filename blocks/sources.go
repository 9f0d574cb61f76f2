package blocks

import (
	"errors"
	"fmt"

	"github.com/sbl8/sigflow/core"
	"github.com/sbl8/sigflow/kernels"
	"github.com/sbl8/sigflow/runtime"
)

// VectorSource emits a fixed list of float32 values, once or repeatedly.
// Tags are given with offsets into the list and are re-emitted on every
// repetition at the matching absolute offset.
type VectorSource struct {
	*runtime.Block
	data   []float32
	repeat bool
	tagsAt map[int][]core.Tag
	pos    uint64
}

// NewVectorSource builds a source over data. Tags with offsets outside data
// are rejected.
func NewVectorSource(ids *core.IDAllocator, data []float32, repeat bool, tags []core.Tag) (*VectorSource, error) {
	if repeat && len(data) == 0 {
		return nil, errors.New("vector_source: cannot repeat an empty vector")
	}
	s := &VectorSource{
		Block:  runtime.NewBlock(ids, "vector_source", core.NewIOSignature(0, 0), core.NewIOSignature(1, 1, 4)),
		data:   append([]float32(nil), data...),
		repeat: repeat,
		tagsAt: make(map[int][]core.Tag),
	}
	for _, t := range tags {
		if t.Offset >= uint64(len(data)) {
			return nil, fmt.Errorf("vector_source: tag %q at offset %d past the %d-item vector", t.Key, t.Offset, len(data))
		}
		s.tagsAt[int(t.Offset)] = append(s.tagsAt[int(t.Offset)], t)
	}
	return s, nil
}

func (s *VectorSource) GeneralWork(io *runtime.WorkIO) (int, error) {
	total := uint64(len(s.data))
	if !s.repeat && s.pos >= total {
		return runtime.WorkDone, nil
	}
	n := io.NoutputItems
	if !s.repeat {
		n = min(n, int(total-s.pos))
	}
	out := kernels.Float32s(io.Outputs[0])
	for i := 0; i < n; i++ {
		idx := int((s.pos + uint64(i)) % total)
		out[i] = s.data[idx]
		for _, t := range s.tagsAt[idx] {
			t.Offset = s.pos + uint64(i)
			s.AddItemTag(0, t)
		}
	}
	s.pos += uint64(n)
	return n, nil
}

// NullSource emits zero items forever.
type NullSource struct {
	*runtime.Block
}

func NewNullSource(ids *core.IDAllocator, itemSize int) *NullSource {
	return &NullSource{Block: runtime.NewBlock(ids, "null_source", core.NewIOSignature(0, 0), core.NewIOSignature(1, 1, itemSize))}
}

func (s *NullSource) GeneralWork(io *runtime.WorkIO) (int, error) {
	clear(io.Outputs[0])
	return io.NoutputItems, nil
}
