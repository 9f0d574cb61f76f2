package blocks

import (
	"errors"
	"fmt"

	"github.com/sbl8/sigflow/core"
	"github.com/sbl8/sigflow/runtime"
)

// Head passes the first n items through and then reports done.
type Head struct {
	*runtime.Block
	n        uint64
	copied   uint64
	itemSize int
}

// NewHead returns a 1:1 processor that stops after n items.
func NewHead(ids *core.IDAllocator, n, itemSize int) (runtime.Processor, error) {
	if n < 0 {
		return nil, fmt.Errorf("head: n must be >= 0, got %d", n)
	}
	h := &Head{
		Block:    runtime.NewBlock(ids, "head", core.NewIOSignature(1, 1, itemSize), core.NewIOSignature(1, 1, itemSize)),
		n:        uint64(n),
		itemSize: itemSize,
	}
	return runtime.NewSync(h), nil
}

func (h *Head) Work(io *runtime.WorkIO) (int, error) {
	if h.copied >= h.n {
		return runtime.WorkDone, nil
	}
	k := min(io.NoutputItems, int(h.n-h.copied))
	copy(io.Outputs[0][:k*h.itemSize], io.Inputs[0])
	h.copied += uint64(k)
	return k, nil
}

// KeepOneInN keeps the first item of every group of n.
type KeepOneInN struct {
	*runtime.Block
	n        int
	itemSize int
}

// NewKeepOneInN returns a decimating processor.
func NewKeepOneInN(ids *core.IDAllocator, n, itemSize int) (runtime.Processor, error) {
	if n < 1 {
		return nil, errors.New("keep_one_in_n: n must be >= 1")
	}
	k := &KeepOneInN{
		Block:    runtime.NewBlock(ids, "keep_one_in_n", core.NewIOSignature(1, 1, itemSize), core.NewIOSignature(1, 1, itemSize)),
		n:        n,
		itemSize: itemSize,
	}
	return runtime.NewSyncDecimator(k, n)
}

func (k *KeepOneInN) Work(io *runtime.WorkIO) (int, error) {
	sz := k.itemSize
	for i := 0; i < io.NoutputItems; i++ {
		copy(io.Outputs[0][i*sz:(i+1)*sz], io.Inputs[0][i*k.n*sz:])
	}
	return io.NoutputItems, nil
}

// Repeat emits every input item interpolation times.
type Repeat struct {
	*runtime.Block
	interp   int
	itemSize int
}

// NewRepeat returns an interpolating processor.
func NewRepeat(ids *core.IDAllocator, interp, itemSize int) (runtime.Processor, error) {
	if interp < 1 {
		return nil, errors.New("repeat: interpolation must be >= 1")
	}
	r := &Repeat{
		Block:    runtime.NewBlock(ids, "repeat", core.NewIOSignature(1, 1, itemSize), core.NewIOSignature(1, 1, itemSize)),
		interp:   interp,
		itemSize: itemSize,
	}
	return runtime.NewSyncInterpolator(r, interp)
}

func (r *Repeat) Work(io *runtime.WorkIO) (int, error) {
	sz := r.itemSize
	for i := 0; i < io.NoutputItems; i++ {
		j := i / r.interp
		copy(io.Outputs[0][i*sz:(i+1)*sz], io.Inputs[0][j*sz:(j+1)*sz])
	}
	return io.NoutputItems, nil
}
