package runtime

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/sigflow/core"
)

func linearStream(items, itemSize int) *stream {
	return newStream("test", &linearBuffer{mem: make([]byte, items*itemSize)}, itemSize, 0)
}

func putItems(b []byte, vals ...uint32) {
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
}

func getItems(b []byte, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}

func TestLinearStreamTruncatesAtEnd(t *testing.T) {
	t.Parallel()
	s := linearStream(8, 4)
	w := &streamWriter{streams: []*stream{s}, itemSize: 4}
	r := &streamReader{s: s}

	require.Equal(t, 8, w.Space())
	putItems(w.Window(), 1, 2, 3, 4, 5)
	w.Produce(5)
	assert.Equal(t, 5, r.Available())
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, getItems(r.Window(), 5))
	r.Consume(5)

	// Free space wraps, but the contiguous window stops at the physical end.
	assert.Equal(t, 3, w.Space())
	putItems(w.Window(), 6, 7, 8)
	w.Produce(3)
	assert.Equal(t, 5, w.Space())
	assert.Equal(t, 3, r.Available())
	assert.Equal(t, []uint32{6, 7, 8}, getItems(r.Window(), 3))
	r.Consume(3)

	assert.Equal(t, uint64(8), r.NitemsRead())
	assert.Equal(t, uint64(8), w.NitemsWritten())
	assert.Zero(t, r.Available())
}

func TestStreamFanOut(t *testing.T) {
	t.Parallel()
	a, b := linearStream(16, 4), linearStream(16, 4)
	w := &streamWriter{streams: []*stream{a, b}, itemSize: 4}
	ra, rb := &streamReader{s: a}, &streamReader{s: b}

	putItems(w.Window(), 10, 20, 30)
	w.Produce(3)
	assert.Equal(t, []uint32{10, 20, 30}, getItems(ra.Window(), 3))
	assert.Equal(t, []uint32{10, 20, 30}, getItems(rb.Window(), 3))

	// The slower reader bounds the writer.
	ra.Consume(3)
	require.Equal(t, 13, w.Space())
	w.Produce(13)
	assert.Equal(t, 13, ra.Available())
	assert.Equal(t, 16, rb.Available())
	assert.Zero(t, w.Space())

	// A finished reader no longer holds the writer back.
	b.readerDone.Store(true)
	assert.Equal(t, 3, w.Space())
	putItems(w.Window(), 40)
	w.Produce(1)
	assert.Equal(t, 14, a.readable())
	assert.Equal(t, 16, rb.Available(), "finished stream receives nothing")

	a.readerDone.Store(true)
	assert.True(t, w.readersDone())
	assert.Zero(t, w.Space())
	assert.Nil(t, w.Window())
}

func TestStreamMaximum(t *testing.T) {
	t.Parallel()
	s := linearStream(16, 4)
	w := &streamWriter{streams: []*stream{s}, itemSize: 4}
	r := &streamReader{s: s, maximum: 2}

	assert.Equal(t, 16, w.Space(), "the writer leaves the output cap to negotiate")
	w.Produce(5)
	assert.Equal(t, 2, r.Available())
	assert.Len(t, r.Window(), 8)
}

func TestStreamTagsPrunedOnConsume(t *testing.T) {
	t.Parallel()
	a, b := linearStream(16, 4), linearStream(16, 4)
	w := &streamWriter{streams: []*stream{a, b}, itemSize: 4}
	r := &streamReader{s: a}

	w.PostTag(core.Tag{Offset: 1, Key: "x"})
	w.PostTag(core.Tag{Offset: 6, Key: "y"})
	w.Produce(8)
	assert.Equal(t, 2, a.tags.Len())
	assert.Equal(t, 2, b.tags.Len())

	r.Consume(4)
	assert.Equal(t, 1, a.tags.Len())
	assert.Equal(t, 2, b.tags.Len(), "other reader keeps its tags")
}

func TestWindowAligned(t *testing.T) {
	t.Parallel()
	buf := core.AlignedBytes(128)
	assert.True(t, windowAligned(buf))
	assert.False(t, windowAligned(buf[4:]))
	assert.True(t, windowAligned(nil))
}
