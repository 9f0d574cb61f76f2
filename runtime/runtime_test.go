package runtime

import (
	"context"
	"encoding/binary"
	"errors"
	goruntime "runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/sigflow/core"
)

// testSource emits 0..n-1 as uint32 items, then reports done.
type testSource struct {
	*Block
	n       int
	pos     int
	tags    map[int]string
	endless bool
}

func newTestSource(e *Engine, n int) *testSource {
	return &testSource{
		Block: NewBlock(e.IDs(), "src", core.NewIOSignature(0, 0), core.NewIOSignature(1, 1, 4)),
		n:     n,
	}
}

func (s *testSource) GeneralWork(io *WorkIO) (int, error) {
	if s.endless {
		return io.NoutputItems, nil
	}
	if s.pos == s.n {
		return WorkDone, nil
	}
	n := min(io.NoutputItems, s.n-s.pos)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(io.Outputs[0][i*4:], uint32(s.pos+i))
	}
	for off, key := range s.tags {
		if off >= s.pos && off < s.pos+n {
			s.AddItemTag(0, core.Tag{Offset: uint64(off), Key: key})
		}
	}
	s.pos += n
	return n, nil
}

// testSink records every item and tag it consumes.
type testSink struct {
	*Block
	got  []uint32
	tags []core.Tag
	fail error
}

func newTestSink(e *Engine) *testSink {
	return &testSink{Block: NewBlock(e.IDs(), "sink", core.NewIOSignature(1, 1, 4), core.NewIOSignature(0, 0))}
}

func (s *testSink) GeneralWork(io *WorkIO) (int, error) {
	if s.fail != nil {
		return 0, s.fail
	}
	n := io.NoutputItems
	start := s.NitemsRead(0)
	s.got = append(s.got, getItems(io.Inputs[0], n)...)
	s.tags = append(s.tags, s.TagsInRange(0, start, start+uint64(n), "")...)
	s.ConsumeEach(n)
	return n, nil
}

// keepOne keeps the first item of every group of n.
type keepOne struct {
	*Block
	n int
}

func (k *keepOne) Work(io *WorkIO) (int, error) {
	for i := 0; i < io.NoutputItems; i++ {
		copy(io.Outputs[0][i*4:i*4+4], io.Inputs[0][i*k.n*4:])
	}
	return io.NoutputItems, nil
}

// movingSum adds each item to the two before it.
type movingSum struct {
	*Block
}

func (m *movingSum) Work(io *WorkIO) (int, error) {
	in := getItems(io.Inputs[0], io.NoutputItems+2)
	for i := 0; i < io.NoutputItems; i++ {
		binary.LittleEndian.PutUint32(io.Outputs[0][i*4:], in[i]+in[i+1]+in[i+2])
	}
	return io.NoutputItems, nil
}

// repeat writes every input item n times.
type repeat struct {
	*Block
	n int
}

func (r *repeat) Work(io *WorkIO) (int, error) {
	for i := 0; i < io.NoutputItems; i++ {
		copy(io.Outputs[0][i*4:i*4+4], io.Inputs[0][(i/r.n)*4:])
	}
	return io.NoutputItems, nil
}

func smallEngine() *Engine {
	return NewEngine(&EngineOptions{BufferItems: 64, EnableStats: true})
}

func counting(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}

func TestEngineSourceToSink(t *testing.T) {
	t.Parallel()
	e := smallEngine()
	src := newTestSource(e, 10_000)
	sink := newTestSink(e)
	require.NoError(t, e.Connect(src, 0, sink, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	if diff := cmp.Diff(counting(10_000), sink.got); diff != "" {
		t.Errorf("sink items (-want +got):\n%s", diff)
	}
	assert.Equal(t, core.StateDone, src.State())
	assert.Equal(t, core.StateDone, sink.State())

	stats := e.Stats()
	assert.Positive(t, stats.TotalCalls)
	assert.Equal(t, int64(10_000), stats.Blocks[src.ID()].Produced)
	assert.Greater(t, e.ArenaBytes(), 0)
}

func TestEngineDecimatorWithTags(t *testing.T) {
	t.Parallel()
	e := smallEngine()
	src := newTestSource(e, 1000)
	src.tags = map[int]string{9: "burst", 301: "late"}
	k := &keepOne{Block: NewBlock(e.IDs(), "keep", core.NewIOSignature(1, 1, 4), core.NewIOSignature(1, 1, 4)), n: 3}
	dec, err := NewSyncDecimator(k, 3)
	require.NoError(t, err)
	sink := newTestSink(e)
	require.NoError(t, e.Connect(src, 0, dec, 0))
	require.NoError(t, e.Connect(dec, 0, sink, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	var want []uint32
	for i := 0; i+3 <= 1000; i += 3 {
		want = append(want, uint32(i))
	}
	if diff := cmp.Diff(want, sink.got); diff != "" {
		t.Errorf("decimated items (-want +got):\n%s", diff)
	}

	wantTags := []core.Tag{
		{Offset: 3, Key: "burst", SrcID: src.Alias()},
		{Offset: 100, Key: "late", SrcID: src.Alias()},
	}
	if diff := cmp.Diff(wantTags, sink.tags, cmpopts.IgnoreUnexported(core.Tag{})); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
}

func TestEngineHistory(t *testing.T) {
	t.Parallel()
	if goruntime.GOOS != "linux" {
		t.Skip("history streams need double-mapped buffers")
	}
	e := smallEngine()
	src := newTestSource(e, 500)
	m := &movingSum{Block: NewBlock(e.IDs(), "sum", core.NewIOSignature(1, 1, 4), core.NewIOSignature(1, 1, 4))}
	require.NoError(t, m.SetHistory(3))
	sink := newTestSink(e)
	sum := NewSync(m)
	require.NoError(t, e.Connect(src, 0, sum, 0))
	require.NoError(t, e.Connect(sum, 0, sink, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	// The first two outputs see the zero history.
	want := make([]uint32, 500)
	for j := range want {
		for k := j - 2; k <= j; k++ {
			if k >= 0 {
				want[j] += uint32(k)
			}
		}
	}
	if diff := cmp.Diff(want, sink.got); diff != "" {
		t.Errorf("moving sums (-want +got):\n%s", diff)
	}
}

func TestEngineFanOut(t *testing.T) {
	t.Parallel()
	e := smallEngine()
	src := newTestSource(e, 3000)
	a, b := newTestSink(e), newTestSink(e)
	require.NoError(t, e.Connect(src, 0, a, 0))
	require.NoError(t, e.Connect(src, 0, b, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	assert.Equal(t, counting(3000), a.got)
	assert.Equal(t, counting(3000), b.got)
}

func TestEngineInterpolatorCapBelowMultiple(t *testing.T) {
	t.Parallel()
	e := smallEngine()
	src := newTestSource(e, 100)
	rep := &repeat{Block: NewBlock(e.IDs(), "repeat", core.NewIOSignature(1, 1, 4), core.NewIOSignature(1, 1, 4)), n: 4}
	interp, err := NewSyncInterpolator(rep, 4)
	require.NoError(t, err)
	require.NoError(t, rep.SetMaxNoutputItems(3))
	sink := newTestSink(e)
	require.NoError(t, e.Connect(src, 0, interp, 0))
	require.NoError(t, e.Connect(interp, 0, sink, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	want := make([]uint32, 0, 400)
	for i := 0; i < 100; i++ {
		want = append(want, uint32(i), uint32(i), uint32(i), uint32(i))
	}
	if diff := cmp.Diff(want, sink.got); diff != "" {
		t.Errorf("repeated items (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(400), e.Stats().Blocks[rep.ID()].Produced)
}

func TestEngineCancel(t *testing.T) {
	t.Parallel()
	e := smallEngine()
	src := newTestSource(e, 0)
	src.endless = true
	sink := newTestSink(e)
	require.NoError(t, e.Connect(src, 0, sink, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := e.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Error(t, e.Run(context.Background()), "an engine runs once")
}

func TestEngineBlockError(t *testing.T) {
	t.Parallel()
	e := smallEngine()
	src := newTestSource(e, 100)
	sink := newTestSink(e)
	boom := errors.New("boom")
	sink.fail = boom
	require.NoError(t, e.Connect(src, 0, sink, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	assert.ErrorIs(t, e.Run(ctx), boom)
}

func TestEngineTopologyErrors(t *testing.T) {
	t.Parallel()

	t.Run("unconnected output", func(t *testing.T) {
		e := smallEngine()
		require.NoError(t, e.Add(newTestSource(e, 1)))
		assert.ErrorIs(t, e.Run(context.Background()), core.ErrTopology)
	})

	t.Run("item size mismatch", func(t *testing.T) {
		e := smallEngine()
		src := newTestSource(e, 1)
		wide := &testSink{Block: NewBlock(e.IDs(), "wide", core.NewIOSignature(1, 1, 8), core.NewIOSignature(0, 0))}
		require.NoError(t, e.Connect(src, 0, wide, 0))
		assert.ErrorIs(t, e.Run(context.Background()), core.ErrTopology)
	})

	t.Run("duplicate add", func(t *testing.T) {
		e := smallEngine()
		src := newTestSource(e, 1)
		require.NoError(t, e.Add(src))
		assert.Error(t, e.Add(src))
	})
}

func TestNotifierWakesWaiters(t *testing.T) {
	t.Parallel()
	n := newNotifier()
	wake := n.wait()
	n.broadcast()
	select {
	case <-wake:
	default:
		t.Fatal("broadcast did not close the waiter's channel")
	}
	select {
	case <-n.wait():
		t.Fatal("fresh channel already closed")
	default:
	}
}
