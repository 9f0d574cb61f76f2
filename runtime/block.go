package runtime

import (
	"fmt"
	"sync/atomic"

	"github.com/sbl8/sigflow/core"
)

// Return values of GeneralWork besides a produced item count.
const (
	// WorkDone tells the engine the block will never produce again.
	WorkDone = -1
	// WorkCalledProduce tells the engine the block recorded per-port
	// production with Produce.
	WorkCalledProduce = -2
)

// TagPolicy selects how tags on consumed input items reach the outputs.
type TagPolicy int

const (
	TagPropagateDont TagPolicy = iota
	TagPropagateAllToAll
	TagPropagateOneToOne
)

func (p TagPolicy) String() string {
	switch p {
	case TagPropagateDont:
		return "dont"
	case TagPropagateAllToAll:
		return "all_to_all"
	case TagPropagateOneToOne:
		return "one_to_one"
	default:
		return fmt.Sprintf("TagPolicy(%d)", int(p))
	}
}

// WorkIO carries the windows of one call into GeneralWork. Input slices start
// at the oldest history item; output slices hold exactly NoutputItems items.
type WorkIO struct {
	NoutputItems int
	NinputItems  []int
	Inputs       [][]byte
	Outputs      [][]byte
	// Aligned is false when any window does not start on core.MaxAlignment.
	Aligned bool
}

// Processor is implemented by every block. Embed *Block to get the defaults
// and override GeneralWork.
type Processor interface {
	Base() *Block
	// Forecast fills required with the input items needed on each port to
	// produce noutput items.
	Forecast(noutput int, required []int)
	// GeneralWork processes one call. It returns items produced on every
	// output, 0, WorkDone or WorkCalledProduce.
	GeneralWork(io *WorkIO) (int, error)
}

// TopologyChecker lets a block reject port counts its signature allows.
type TopologyChecker interface {
	CheckTopology(ninputs, noutputs int) error
}

// Starter is called once before the first call.
type Starter interface {
	Start() error
}

// Stopper is called once after the last call.
type Stopper interface {
	Stop() error
}

// FixedRateConverter maps item counts across a strict-ratio block. The Block
// defaults return core.ErrNotImplemented.
type FixedRateConverter interface {
	FixedRateNoutputToNinput(noutput int) (int, error)
	FixedRateNinputToNoutput(ninput int) (int, error)
}

// Block holds the identity, port configuration and rate model shared by all
// processors. Setters may be called before binding and between calls; they
// must not race with the block's own call.
type Block struct {
	id     uint64
	name   string
	inSig  core.IOSignature
	outSig core.IOSignature

	rate         core.RateModel
	inputHistory map[int]int
	policy       TagPolicy
	state        atomic.Int32

	bound   bool
	self    Processor
	inputs  []core.PortConfig
	outputs []core.PortConfig

	// per-call state, valid while GeneralWork runs
	ins      []InputPort
	outs     []OutputPort
	consumed []int
	produced []int
}

// NewBlock allocates a block with a fresh id from ids.
func NewBlock(ids *core.IDAllocator, name string, in, out core.IOSignature) *Block {
	return &Block{
		id:     ids.Next(),
		name:   name,
		inSig:  in,
		outSig: out,
		rate:   core.NewRateModel(),
		policy: TagPropagateAllToAll,
	}
}

// Base returns b, so *Block satisfies the Base part of Processor.
func (b *Block) Base() *Block { return b }

func (b *Block) ID() uint64   { return b.id }
func (b *Block) Name() string { return b.name }

// Alias is the display name used in logs and as the default tag source.
func (b *Block) Alias() string { return fmt.Sprintf("%s%d", b.name, b.id) }

func (b *Block) InputSignature() core.IOSignature  { return b.inSig }
func (b *Block) OutputSignature() core.IOSignature { return b.outSig }

func (b *Block) State() core.BlockState { return core.BlockState(b.state.Load()) }

func (b *Block) setState(s core.BlockState) { b.state.Store(int32(s)) }

// Rate returns a copy of the rate model.
func (b *Block) Rate() core.RateModel { return b.rate }

func (b *Block) History() int           { return b.rate.History() }
func (b *Block) OutputMultiple() int    { return b.rate.OutputMultiple() }
func (b *Block) RelativeRate() float64  { return b.rate.RelativeRate() }
func (b *Block) FixedRate() bool        { return b.rate.FixedRate() }
func (b *Block) IsUnaligned() bool      { return b.rate.Unaligned() }
func (b *Block) TagPolicy() TagPolicy   { return b.policy }
func (b *Block) NumInputs() int         { return len(b.inputs) }
func (b *Block) NumOutputs() int        { return len(b.outputs) }
func (b *Block) Alignment() int         { return b.rate.Alignment() }
func (b *Block) UnalignedItems() int    { return b.rate.UnalignedItems() }
func (b *Block) MaxNoutputItems() int   { return b.rate.MaxNoutputItems() }
func (b *Block) InputHistory(i int) int { return b.lookback(i) + 1 }

// InputConfig returns the configuration of input port i.
func (b *Block) InputConfig(i int) core.PortConfig { return b.inputs[i] }

// OutputConfig returns the configuration of output port i.
func (b *Block) OutputConfig(i int) core.PortConfig { return b.outputs[i] }

// lookback returns the items input i keeps behind its read cursor.
func (b *Block) lookback(i int) int {
	if h, ok := b.inputHistory[i]; ok {
		return h - 1
	}
	return b.rate.Lookback()
}

// Bind fixes the port counts and derives the port configuration. self is the
// processor that embeds b; its FixedRateConverter, if any, feeds the input
// reserve.
func (b *Block) Bind(ninputs, noutputs int, self Processor) error {
	if err := b.inSig.Check(ninputs); err != nil {
		return fmt.Errorf("block %s inputs: %w", b.Alias(), err)
	}
	if err := b.outSig.Check(noutputs); err != nil {
		return fmt.Errorf("block %s outputs: %w", b.Alias(), err)
	}
	if tc, ok := self.(TopologyChecker); ok {
		if err := tc.CheckTopology(ninputs, noutputs); err != nil {
			return fmt.Errorf("block %s: %w: %v", b.Alias(), core.ErrTopology, err)
		}
	}

	b.self = self
	b.inputs = make([]core.PortConfig, ninputs)
	for i := range b.inputs {
		b.inputs[i] = core.DefaultPortConfig(b.inSig.ItemSize(i))
	}
	b.outputs = make([]core.PortConfig, noutputs)
	for i := range b.outputs {
		b.outputs[i] = core.DefaultPortConfig(b.outSig.ItemSize(i))
	}
	b.consumed = make([]int, ninputs)
	b.produced = make([]int, noutputs)
	b.bound = true
	b.syncPorts()
	b.setState(core.StateTopologyBound)
	return nil
}

// syncPorts writes the rate model into the port configuration. It is a no-op
// before Bind and idempotent after.
func (b *Block) syncPorts() {
	if !b.bound {
		return
	}
	for i := range b.inputs {
		b.inputs[i].PreloadItems = b.lookback(i)
		b.inputs[i].ReserveItems = 1
	}
	for i := range b.outputs {
		b.outputs[i].ReserveItems = b.rate.OutputMultiple()
		b.outputs[i].MaximumItems = b.rate.MaxNoutputItems()
	}
	if len(b.inputs) == 0 {
		return
	}
	var convert func(int) (int, error)
	if c, ok := b.self.(FixedRateConverter); ok {
		convert = c.FixedRateNoutputToNinput
	}
	if reserve, ok := b.rate.InputReserve(convert); ok {
		b.inputs[0].ReserveItems = reserve
	}
}

// SetHistory sets the history of every input port. h == 0 is treated as 1.
func (b *Block) SetHistory(h int) error {
	if err := b.rate.SetHistory(h); err != nil {
		return fmt.Errorf("block %s: %w", b.Alias(), err)
	}
	b.inputHistory = nil
	b.syncPorts()
	return nil
}

// SetInputHistory sets the history of input port i only.
func (b *Block) SetInputHistory(i, h int) error {
	if h < 0 || i < 0 {
		return fmt.Errorf("block %s: %w: port %d history %d", b.Alias(), core.ErrInvalidHistory, i, h)
	}
	if h == 0 {
		h = 1
	}
	if b.inputHistory == nil {
		b.inputHistory = make(map[int]int)
	}
	b.inputHistory[i] = h
	b.syncPorts()
	return nil
}

// SetOutputMultiple sets the output granularity, m >= 1.
func (b *Block) SetOutputMultiple(m int) error {
	if err := b.rate.SetOutputMultiple(m); err != nil {
		return fmt.Errorf("block %s: %w", b.Alias(), err)
	}
	b.syncPorts()
	return nil
}

// SetRelativeRate sets outputs produced per input consumed.
func (b *Block) SetRelativeRate(rate float64) error {
	if err := b.rate.SetRelativeRate(rate); err != nil {
		return fmt.Errorf("block %s: %w", b.Alias(), err)
	}
	b.syncPorts()
	return nil
}

// SetInterpolation sets relative rate i and output multiple i.
func (b *Block) SetInterpolation(i int) error {
	if err := b.rate.SetInterpolation(i); err != nil {
		return fmt.Errorf("block %s: %w", b.Alias(), err)
	}
	b.syncPorts()
	return nil
}

// SetDecimation sets relative rate 1/d.
func (b *Block) SetDecimation(d int) error {
	if err := b.rate.SetDecimation(d); err != nil {
		return fmt.Errorf("block %s: %w", b.Alias(), err)
	}
	b.syncPorts()
	return nil
}

func (b *Block) SetFixedRate(fixed bool) {
	b.rate.SetFixedRate(fixed)
	b.syncPorts()
}

// SetMaxNoutputItems caps the output items offered to one call.
func (b *Block) SetMaxNoutputItems(m int) error {
	if err := b.rate.SetMaxNoutputItems(m); err != nil {
		return fmt.Errorf("block %s: %w", b.Alias(), err)
	}
	b.syncPorts()
	return nil
}

func (b *Block) UnsetMaxNoutputItems() {
	b.rate.UnsetMaxNoutputItems()
	b.syncPorts()
}

// SetAlignment sets the preferred output alignment in items. Calls are
// trimmed to end on an alignment boundary unless an output multiple is set.
func (b *Block) SetAlignment(a int) error {
	if err := b.rate.SetAlignment(a); err != nil {
		return fmt.Errorf("block %s: %w", b.Alias(), err)
	}
	return nil
}

func (b *Block) SetTagPropagationPolicy(p TagPolicy) { b.policy = p }

// Forecast is the default: a fixed-rate block needs round(n/rate) items plus
// its lookback, any other block n plus its lookback.
func (b *Block) Forecast(noutput int, required []int) {
	for i := range required {
		lb := b.lookback(i)
		if b.rate.FixedRate() {
			required[i] = b.rate.FixedRateItems(noutput, lb)
		} else {
			required[i] = noutput + lb
		}
	}
}

// GeneralWork must be overridden by the embedding processor.
func (b *Block) GeneralWork(*WorkIO) (int, error) {
	return 0, fmt.Errorf("block %s general work: %w", b.Alias(), core.ErrNotImplemented)
}

func (b *Block) FixedRateNoutputToNinput(int) (int, error) { return 0, core.ErrNotImplemented }
func (b *Block) FixedRateNinputToNoutput(int) (int, error) { return 0, core.ErrNotImplemented }

// beginCall attaches the ports of the current call and clears its counters.
func (b *Block) beginCall(ins []InputPort, outs []OutputPort) {
	b.ins = ins
	b.outs = outs
	clear(b.consumed)
	clear(b.produced)
}

// Consume records n items consumed on input i during the current call.
func (b *Block) Consume(i, n int) {
	b.consumed[i] += n
}

// ConsumeEach records n items consumed on every input.
func (b *Block) ConsumeEach(n int) {
	for i := range b.consumed {
		b.consumed[i] += n
	}
}

// Produce records n items produced on output o. Return WorkCalledProduce
// from GeneralWork after using it.
func (b *Block) Produce(o, n int) {
	b.produced[o] += n
}

// NitemsRead returns the items consumed on input i before the current call.
func (b *Block) NitemsRead(i int) uint64 { return b.ins[i].NitemsRead() }

// NitemsWritten returns the items produced on output o before the current call.
func (b *Block) NitemsWritten(o int) uint64 { return b.outs[o].NitemsWritten() }

// TagsInRange returns the tags on input i with start <= offset < end. An
// empty key matches all tags. Removed tags are not returned.
func (b *Block) TagsInRange(i int, start, end uint64, key string) []core.Tag {
	return b.ins[i].Tags().InRange(start, end, key)
}

// AddItemTag posts tag on output o. An empty SrcID is filled with the alias.
func (b *Block) AddItemTag(o int, tag core.Tag) {
	if tag.SrcID == "" {
		tag.SrcID = b.Alias()
	}
	b.outs[o].PostTag(tag)
}

// RemoveItemTag stops tag on input i from being read or propagated.
func (b *Block) RemoveItemTag(i int, tag core.Tag) {
	b.ins[i].Tags().Blacklist(tag)
}
