package blocks

import (
	"sync"
	"sync/atomic"

	"github.com/sbl8/sigflow/core"
	"github.com/sbl8/sigflow/kernels"
	"github.com/sbl8/sigflow/runtime"
)

// VectorSink collects every float32 item and tag it consumes.
type VectorSink struct {
	*runtime.Block

	mu   sync.Mutex
	data []float32
	tags []core.Tag
}

func NewVectorSink(ids *core.IDAllocator) *VectorSink {
	return &VectorSink{Block: runtime.NewBlock(ids, "vector_sink", core.NewIOSignature(1, 1, 4), core.NewIOSignature(0, 0))}
}

func (s *VectorSink) GeneralWork(io *runtime.WorkIO) (int, error) {
	n := io.NoutputItems
	start := s.NitemsRead(0)
	tags := s.TagsInRange(0, start, start+uint64(n), "")

	s.mu.Lock()
	s.data = append(s.data, kernels.Float32s(io.Inputs[0])[:n]...)
	s.tags = append(s.tags, tags...)
	s.mu.Unlock()

	s.ConsumeEach(n)
	return n, nil
}

// Data returns a copy of the items collected so far.
func (s *VectorSink) Data() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float32(nil), s.data...)
}

// Tags returns a copy of the tags collected so far.
func (s *VectorSink) Tags() []core.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Tag(nil), s.tags...)
}

// Reset drops everything collected.
func (s *VectorSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	s.tags = nil
}

// NullSink discards its input and counts it.
type NullSink struct {
	*runtime.Block
	count atomic.Uint64
}

func NewNullSink(ids *core.IDAllocator, itemSize int) *NullSink {
	return &NullSink{Block: runtime.NewBlock(ids, "null_sink", core.NewIOSignature(1, 1, itemSize), core.NewIOSignature(0, 0))}
}

func (s *NullSink) GeneralWork(io *runtime.WorkIO) (int, error) {
	n := io.NoutputItems
	s.ConsumeEach(n)
	s.count.Add(uint64(n))
	return n, nil
}

// Count returns the items consumed so far.
func (s *NullSink) Count() uint64 { return s.count.Load() }
