package runtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/sigflow/core"
)

// fakeInput is an InputPort over a flat byte slice.
type fakeInput struct {
	items    int
	itemSize int
	read     uint64
	data     []byte
	tags     *core.TagStore
}

func newFakeInput(items, itemSize int) *fakeInput {
	return &fakeInput{items: items, itemSize: itemSize, data: make([]byte, items*itemSize), tags: core.NewTagStore()}
}

func (f *fakeInput) Available() int       { return f.items }
func (f *fakeInput) Window() []byte       { return f.data[:f.items*f.itemSize] }
func (f *fakeInput) NitemsRead() uint64   { return f.read }
func (f *fakeInput) Tags() *core.TagStore { return f.tags }
func (f *fakeInput) Consume(n int) {
	f.read += uint64(n)
	f.items -= n
	f.data = f.data[n*f.itemSize:]
}

// fakeOutput is an OutputPort that records produced items and tags.
type fakeOutput struct {
	space    int
	itemSize int
	written  uint64
	buf      []byte
	tags     []core.Tag
}

func newFakeOutput(space, itemSize int) *fakeOutput {
	return &fakeOutput{space: space, itemSize: itemSize, buf: make([]byte, space*itemSize)}
}

func (f *fakeOutput) Space() int             { return f.space }
func (f *fakeOutput) Window() []byte         { return f.buf }
func (f *fakeOutput) NitemsWritten() uint64  { return f.written }
func (f *fakeOutput) PostTag(tag core.Tag)   { f.tags = append(f.tags, tag) }
func (f *fakeOutput) Produce(n int)          { f.written += uint64(n) }

// countingBlock records the calls it receives and produces everything offered.
type countingBlock struct {
	*Block
	calls   int
	lastN   int
	ret     int
	consume bool
}

func (c *countingBlock) GeneralWork(io *WorkIO) (int, error) {
	c.calls++
	c.lastN = io.NoutputItems
	if c.consume {
		c.ConsumeEach(io.NoutputItems)
	}
	if c.ret != 0 {
		return c.ret, nil
	}
	return io.NoutputItems, nil
}

func newCounting(t *testing.T, nin, nout int) *countingBlock {
	t.Helper()
	var ids core.IDAllocator
	b := &countingBlock{Block: NewBlock(&ids, "count", core.NewIOSignature(nin, nin, 4), core.NewIOSignature(nout, nout, 4))}
	return b
}

func bindExecutor(t *testing.T, p Processor, ins []InputPort, outs []OutputPort) *Executor {
	t.Helper()
	require.NoError(t, p.Base().Bind(len(ins), len(outs), p))
	ex, err := NewExecutor(p, ins, outs)
	require.NoError(t, err)
	return ex
}

func TestInvokeOffersAvailableOutputSpace(t *testing.T) {
	t.Parallel()
	blk := newCounting(t, 1, 1)
	blk.consume = true
	in := newFakeInput(100, 4)
	out := newFakeOutput(50, 4)
	ex := bindExecutor(t, blk, []InputPort{in}, []OutputPort{out})

	res, err := ex.Invoke()
	require.NoError(t, err)
	assert.Equal(t, OutcomeProduced, res.Outcome)
	assert.Equal(t, 50, res.NoutputItems)
	assert.Equal(t, 50, blk.lastN)
	assert.Equal(t, []int{50}, res.Consumed)
	assert.Equal(t, uint64(50), out.written)
	assert.Equal(t, uint64(50), in.read)
}

func TestNegotiateDecimatorBacksOff(t *testing.T) {
	t.Parallel()
	rate := core.NewRateModel()
	rate.SetFixedRate(true)
	require.NoError(t, rate.SetDecimation(2))

	forecast := func(n int, req []int) { req[0] = rate.FixedRateItems(n, 0) }
	neg := negotiate(&rate, []int{0}, []int{9}, []int{100}, forecast, make([]int, 1))

	assert.Equal(t, OutcomeProduced, neg.starved)
	assert.Equal(t, 2, neg.noutput, "ceil(9*0.5)=5 needs 10 inputs, halving to 2 needs 4")
	assert.Equal(t, 2, neg.attempts)
}

func TestInvokeStarvesOnHistory(t *testing.T) {
	t.Parallel()
	for _, fixed := range []bool{true, false} {
		blk := newCounting(t, 1, 1)
		require.NoError(t, blk.SetHistory(3))
		blk.SetFixedRate(fixed)
		ex := bindExecutor(t, blk, []InputPort{newFakeInput(2, 4)}, []OutputPort{newFakeOutput(64, 4)})

		res, err := ex.Invoke()
		require.NoError(t, err)
		assert.Equal(t, OutcomeInputStarved, res.Outcome, "fixed=%v", fixed)
		assert.Equal(t, 0, res.Port)
		assert.Zero(t, blk.calls, "work must not run when starved")
	}
}

func TestInvokeOutputStarved(t *testing.T) {
	t.Parallel()
	blk := newCounting(t, 1, 2)
	require.NoError(t, blk.SetOutputMultiple(4))
	ex := bindExecutor(t, blk,
		[]InputPort{newFakeInput(100, 4)},
		[]OutputPort{newFakeOutput(16, 4), newFakeOutput(3, 4)})

	res, err := ex.Invoke()
	require.NoError(t, err)
	assert.Equal(t, OutcomeOutputStarved, res.Outcome)
	assert.Equal(t, 1, res.Port)
	assert.Zero(t, blk.calls)
}

func TestNegotiateRespectsOutputMultiple(t *testing.T) {
	t.Parallel()
	rate := core.NewRateModel()
	require.NoError(t, rate.SetOutputMultiple(8))
	forecast := func(n int, req []int) { req[0] = n }

	neg := negotiate(&rate, []int{0}, []int{1000}, []int{37}, forecast, make([]int, 1))
	assert.Equal(t, 32, neg.noutput)

	neg = negotiate(&rate, []int{0}, []int{20}, []int{1000}, forecast, make([]int, 1))
	require.Equal(t, OutcomeProduced, neg.starved)
	assert.Zero(t, neg.noutput%8)
	assert.LessOrEqual(t, neg.noutput, 20)
}

func TestNegotiateMaxNoutputClamp(t *testing.T) {
	t.Parallel()
	rate := core.NewRateModel()
	require.NoError(t, rate.SetOutputMultiple(4))
	require.NoError(t, rate.SetMaxNoutputItems(10))
	forecast := func(n int, req []int) { req[0] = n }

	neg := negotiate(&rate, []int{0}, []int{1000}, []int{1000}, forecast, make([]int, 1))
	assert.Equal(t, 12, neg.noutput, "cap rounds up to the output multiple")

	require.NoError(t, rate.SetMaxNoutputItems(3))
	neg = negotiate(&rate, []int{0}, []int{1000}, []int{64}, forecast, make([]int, 1))
	require.Equal(t, OutcomeProduced, neg.starved, "a cap below the multiple still allows one multiple")
	assert.Equal(t, 4, neg.noutput)
}

func TestNegotiateSinkUsesInputCount(t *testing.T) {
	t.Parallel()
	rate := core.NewRateModel()
	forecast := func(n int, req []int) { req[0] = n }
	neg := negotiate(&rate, []int{0}, []int{37}, nil, forecast, make([]int, 1))
	assert.Equal(t, 37, neg.noutput)
	assert.Equal(t, 1, neg.attempts)
}

func TestNegotiateBackoffTerminates(t *testing.T) {
	t.Parallel()
	for _, om := range []int{1, 2, 3, 7, 64} {
		for _, space := range []int{om, 5 * om, 1000, 1 << 20} {
			rate := core.NewRateModel()
			require.NoError(t, rate.SetOutputMultiple(om))
			calls := 0
			never := func(n int, req []int) {
				calls++
				req[0] = n + 1_000_000_000
			}
			neg := negotiate(&rate, []int{0}, []int{10}, []int{space}, never, make([]int, 1))
			assert.Equal(t, OutcomeInputStarved, neg.starved)
			bound := 1
			for s := space / om; s > 1; s = (s + 1) / 2 {
				bound++
			}
			assert.LessOrEqual(t, calls, bound+1, "om=%d space=%d", om, space)
		}
	}
}

func TestInvokeContractViolations(t *testing.T) {
	t.Parallel()
	blk := newCounting(t, 1, 1)
	blk.ret = 65
	ex := bindExecutor(t, blk, []InputPort{newFakeInput(64, 4)}, []OutputPort{newFakeOutput(64, 4)})
	_, err := ex.Invoke()
	assert.ErrorIs(t, err, core.ErrContract)

	over := newCounting(t, 1, 1)
	over.ret = -7
	ex = bindExecutor(t, over, []InputPort{newFakeInput(64, 4)}, []OutputPort{newFakeOutput(64, 4)})
	_, err = ex.Invoke()
	assert.ErrorIs(t, err, core.ErrContract)

	var ids core.IDAllocator
	greedy := &greedyBlock{Block: NewBlock(&ids, "greedy", core.NewIOSignature(1, 1, 4), core.NewIOSignature(0, 0))}
	require.NoError(t, greedy.SetHistory(3))
	in := newFakeInput(10, 4)
	ex = bindExecutor(t, greedy, []InputPort{in}, nil)
	_, err = ex.Invoke()
	assert.ErrorIs(t, err, core.ErrContract, "consuming into the history window")
	assert.Zero(t, in.read)
}

// greedyBlock consumes every item it is shown, history included.
type greedyBlock struct {
	*Block
}

func (g *greedyBlock) GeneralWork(io *WorkIO) (int, error) {
	g.ConsumeEach(io.NinputItems[0])
	return 0, nil
}

func TestInvokeAlignment(t *testing.T) {
	t.Parallel()
	blk := newCounting(t, 0, 1)
	require.NoError(t, blk.SetAlignment(8))
	out := newFakeOutput(64, 4)
	ex := bindExecutor(t, blk, nil, []OutputPort{out})

	steps := []struct {
		space     int
		want      int
		unaligned bool
		left      int
	}{
		{space: 13, want: 8},
		{space: 5, want: 5, unaligned: true, left: 3},
		{space: 13, want: 11},
		{space: 13, want: 8},
	}
	for i, st := range steps {
		out.space = st.space
		res, err := ex.Invoke()
		require.NoError(t, err)
		require.Equal(t, OutcomeProduced, res.Outcome, "step %d", i)
		assert.Equal(t, st.want, blk.lastN, "step %d", i)
		assert.Equal(t, st.unaligned, blk.IsUnaligned(), "step %d", i)
		assert.Equal(t, st.left, blk.UnalignedItems(), "step %d", i)
	}
	assert.Equal(t, uint64(8+5+11+8), out.written)
}

func TestNegotiateAlignment(t *testing.T) {
	t.Parallel()
	forecast := func(n int, req []int) { req[0] = n }
	tests := []struct {
		name     string
		multiple int
		availIn  int
		space    int
		want     int
	}{
		{name: "rounds down to the alignment", availIn: 100, space: 13, want: 8},
		{name: "short of one alignment", availIn: 100, space: 5, want: 5},
		{name: "input bound", availIn: 30, space: 64, want: 24},
		{name: "explicit multiple wins", multiple: 4, availIn: 100, space: 13, want: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rate := core.NewRateModel()
			rate.SetFixedRate(true)
			require.NoError(t, rate.SetAlignment(8))
			if tt.multiple > 0 {
				require.NoError(t, rate.SetOutputMultiple(tt.multiple))
			}
			neg := negotiate(&rate, []int{0}, []int{tt.availIn}, []int{tt.space}, forecast, make([]int, 1))
			require.Equal(t, OutcomeProduced, neg.starved)
			assert.Equal(t, tt.want, neg.noutput)
		})
	}
}

func TestNegotiateLookbackOnlyFixedRate(t *testing.T) {
	t.Parallel()
	forecast := func(n int, req []int) { req[0] = n }
	for _, tt := range []struct {
		fixed bool
		want  int
	}{
		{fixed: false, want: 10},
		{fixed: true, want: 7},
	} {
		rate := core.NewRateModel()
		require.NoError(t, rate.SetHistory(4))
		rate.SetFixedRate(tt.fixed)
		neg := negotiate(&rate, []int{3}, []int{10}, nil, forecast, make([]int, 1))
		require.Equal(t, OutcomeProduced, neg.starved, "fixed=%v", tt.fixed)
		assert.Equal(t, tt.want, neg.noutput, "fixed=%v", tt.fixed)
	}
}

type produceBlock struct {
	*Block
}

func (p *produceBlock) GeneralWork(io *WorkIO) (int, error) {
	p.Produce(0, 3)
	p.Produce(1, 5)
	p.Consume(0, 2)
	return WorkCalledProduce, nil
}

func TestInvokeWorkCalledProduce(t *testing.T) {
	t.Parallel()
	var ids core.IDAllocator
	blk := &produceBlock{Block: NewBlock(&ids, "produce", core.NewIOSignature(1, 1, 4), core.NewIOSignature(2, 2, 4))}
	in := newFakeInput(10, 4)
	o0, o1 := newFakeOutput(10, 4), newFakeOutput(10, 4)
	ex := bindExecutor(t, blk, []InputPort{in}, []OutputPort{o0, o1})

	res, err := ex.Invoke()
	require.NoError(t, err)
	assert.Equal(t, OutcomeProduced, res.Outcome)
	assert.Equal(t, 5, res.Produced)
	assert.Equal(t, uint64(3), o0.written)
	assert.Equal(t, uint64(5), o1.written)
	assert.Equal(t, uint64(2), in.read)
}

func TestInvokeWorkDone(t *testing.T) {
	t.Parallel()
	blk := newCounting(t, 0, 1)
	blk.ret = WorkDone
	ex := bindExecutor(t, blk, nil, []OutputPort{newFakeOutput(8, 4)})
	res, err := ex.Invoke()
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, res.Outcome)
}

func TestInvokeWorkError(t *testing.T) {
	t.Parallel()
	var ids core.IDAllocator
	blk := NewBlock(&ids, "bare", core.NewIOSignature(0, 0), core.NewIOSignature(1, 1, 4))
	ex := bindExecutor(t, blk, nil, []OutputPort{newFakeOutput(8, 4)})
	_, err := ex.Invoke()
	assert.True(t, errors.Is(err, core.ErrNotImplemented))
}

func TestNewExecutorRequiresBinding(t *testing.T) {
	t.Parallel()
	blk := newCounting(t, 0, 1)
	_, err := NewExecutor(blk, nil, []OutputPort{newFakeOutput(1, 4)})
	assert.Error(t, err)

	require.NoError(t, blk.Bind(0, 1, blk))
	_, err = NewExecutor(blk, nil, nil)
	assert.ErrorIs(t, err, core.ErrTopology)
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "input-starved", OutcomeInputStarved.String())
	assert.Equal(t, "Outcome(99)", Outcome(99).String())
}
