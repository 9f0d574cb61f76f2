package blocks

import (
	"fmt"

	"github.com/sbl8/sigflow/core"
	"github.com/sbl8/sigflow/kernels"
	"github.com/sbl8/sigflow/runtime"
)

// Add sums two or more float32 streams item by item.
type Add struct {
	*runtime.Block
}

func NewAdd(ids *core.IDAllocator) runtime.Processor {
	return runtime.NewSync(&Add{Block: runtime.NewBlock(ids, "add", core.NewIOSignature(2, core.Unbounded, 4), core.NewIOSignature(1, 1, 4))})
}

func (a *Add) Work(io *runtime.WorkIO) (int, error) {
	n := io.NoutputItems
	out := kernels.Float32s(io.Outputs[0])[:n]
	kernels.Add(out, kernels.Float32s(io.Inputs[0]), kernels.Float32s(io.Inputs[1]))
	for _, in := range io.Inputs[2:] {
		kernels.AddInPlace(out, kernels.Float32s(in))
	}
	return n, nil
}

// MultiplyConst scales a float32 stream by k.
type MultiplyConst struct {
	*runtime.Block
	k float32
}

func NewMultiplyConst(ids *core.IDAllocator, k float32) runtime.Processor {
	return runtime.NewSync(&MultiplyConst{
		Block: runtime.NewBlock(ids, "multiply_const", core.NewIOSignature(1, 1, 4), core.NewIOSignature(1, 1, 4)),
		k:     k,
	})
}

func (m *MultiplyConst) Work(io *runtime.WorkIO) (int, error) {
	n := io.NoutputItems
	kernels.Scale(kernels.Float32s(io.Outputs[0])[:n], kernels.Float32s(io.Inputs[0]), m.k)
	return n, nil
}

// Map applies a named pointwise kernel to a float32 stream.
type Map struct {
	*runtime.Block
	fn kernels.MapFn
}

func NewMap(ids *core.IDAllocator, name string) (runtime.Processor, error) {
	fn, err := kernels.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}
	return runtime.NewSync(&Map{
		Block: runtime.NewBlock(ids, "map_"+name, core.NewIOSignature(1, 1, 4), core.NewIOSignature(1, 1, 4)),
		fn:    fn,
	}), nil
}

func (m *Map) Work(io *runtime.WorkIO) (int, error) {
	n := io.NoutputItems
	kernels.Apply(m.fn, kernels.Float32s(io.Outputs[0])[:n], kernels.Float32s(io.Inputs[0]))
	return n, nil
}
