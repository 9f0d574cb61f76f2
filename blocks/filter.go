package blocks

import (
	"errors"

	"github.com/sbl8/sigflow/core"
	"github.com/sbl8/sigflow/kernels"
	"github.com/sbl8/sigflow/runtime"
)

// FIRFilter is a float32 FIR filter with optional decimation.
//
// Output j is sum(taps[k] * x[j*decimation - k]). The block's history is the
// tap count, so the first outputs see zeros before the stream start.
type FIRFilter struct {
	*runtime.Block
	reversed []float32
	decim    int
}

// NewFIRFilter returns a FIR processor. decimation 1 keeps the input rate.
func NewFIRFilter(ids *core.IDAllocator, taps []float32, decimation int) (runtime.Processor, error) {
	if len(taps) == 0 {
		return nil, errors.New("fir_filter: no taps")
	}
	f := &FIRFilter{
		Block: runtime.NewBlock(ids, "fir_filter", core.NewIOSignature(1, 1, 4), core.NewIOSignature(1, 1, 4)),
		decim: max(decimation, 1),
	}
	f.reversed = make([]float32, len(taps))
	for i, t := range taps {
		f.reversed[len(taps)-1-i] = t
	}
	if err := f.SetHistory(len(taps)); err != nil {
		return nil, err
	}
	return runtime.NewSyncDecimator(f, f.decim)
}

// Taps returns the taps in their original order.
func (f *FIRFilter) Taps() []float32 {
	taps := make([]float32, len(f.reversed))
	for i, t := range f.reversed {
		taps[len(taps)-1-i] = t
	}
	return taps
}

func (f *FIRFilter) Work(io *runtime.WorkIO) (int, error) {
	in := kernels.Float32s(io.Inputs[0])
	out := kernels.Float32s(io.Outputs[0])
	for j := range out[:io.NoutputItems] {
		out[j] = kernels.Dot(in[j*f.decim:], f.reversed)
	}
	return io.NoutputItems, nil
}
