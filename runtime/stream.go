package runtime

import (
	"sync/atomic"
	"unsafe"

	"github.com/sbl8/sigflow/core"
)

// InputPort is what a block sees of one input stream during a call.
type InputPort interface {
	// Available returns the contiguous items readable, history included.
	Available() int
	// Window returns the readable bytes starting at the oldest history item.
	Window() []byte
	// Consume advances the read cursor by n items.
	Consume(n int)
	// NitemsRead returns the total items consumed so far.
	NitemsRead() uint64
	Tags() *core.TagStore
}

// OutputPort is what a block sees of one output during a call.
type OutputPort interface {
	// Space returns the contiguous items writable.
	Space() int
	Window() []byte
	// Produce publishes n items written into Window.
	Produce(n int)
	NitemsWritten() uint64
	// PostTag attaches a tag to every downstream stream.
	PostTag(tag core.Tag)
}

// stream is a single-writer single-reader item queue owned by one input port.
// w and r are free-running item counters; w starts at the preload so that the
// first call sees history zeros.
type stream struct {
	name     string
	buf      streamBuffer
	itemSize int
	capItems int

	w atomic.Uint64
	r atomic.Uint64

	writerDone atomic.Bool
	readerDone atomic.Bool

	tags *core.TagStore
}

func newStream(name string, buf streamBuffer, itemSize, preload int) *stream {
	s := &stream{
		name:     name,
		buf:      buf,
		itemSize: itemSize,
		capItems: buf.size() / itemSize,
		tags:     core.NewTagStore(),
	}
	s.w.Store(uint64(preload))
	return s
}

func (s *stream) readable() int {
	return int(s.w.Load() - s.r.Load())
}

func (s *stream) writable() int {
	return s.capItems - s.readable()
}

// readWindow returns the contiguous readable items and their bytes.
func (s *stream) readWindow() (int, []byte) {
	n := s.readable()
	pos := int(s.r.Load() % uint64(s.capItems))
	if !s.buf.circular() {
		n = min(n, s.capItems-pos)
	}
	start := pos * s.itemSize
	return n, s.buf.bytes()[start : start+n*s.itemSize]
}

// writeWindow returns the contiguous writable items and their bytes.
func (s *stream) writeWindow() (int, []byte) {
	n := s.writable()
	pos := int(s.w.Load() % uint64(s.capItems))
	if !s.buf.circular() {
		n = min(n, s.capItems-pos)
	}
	start := pos * s.itemSize
	return n, s.buf.bytes()[start : start+n*s.itemSize]
}

// streamReader adapts a stream to InputPort.
type streamReader struct {
	s       *stream
	maximum int
}

func (p *streamReader) Available() int {
	n, _ := p.s.readWindow()
	if p.maximum > 0 {
		n = min(n, p.maximum)
	}
	return n
}

func (p *streamReader) Window() []byte {
	n, b := p.s.readWindow()
	if p.maximum > 0 && n > p.maximum {
		b = b[:p.maximum*p.s.itemSize]
	}
	return b
}

func (p *streamReader) Consume(n int) {
	if n <= 0 {
		return
	}
	end := p.s.r.Add(uint64(n))
	p.s.tags.Prune(end)
}

func (p *streamReader) NitemsRead() uint64   { return p.s.r.Load() }
func (p *streamReader) Tags() *core.TagStore { return p.s.tags }

// streamWriter adapts the streams fed by one output to OutputPort. The block
// writes into the first live stream; Produce copies the batch into the rest.
type streamWriter struct {
	streams  []*stream
	itemSize int
	written  atomic.Uint64

	primary *stream // stream whose window was handed out last
}

func (p *streamWriter) live() []*stream {
	var out []*stream
	for _, s := range p.streams {
		if !s.readerDone.Load() {
			out = append(out, s)
		}
	}
	return out
}

// Space is the free room shared by every live stream. The per-call output
// cap is applied by negotiate, after rounding to the output multiple.
func (p *streamWriter) Space() int {
	live := p.live()
	if len(live) == 0 {
		return 0
	}
	space := -1
	for _, s := range live {
		n, _ := s.writeWindow()
		if space < 0 || n < space {
			space = n
		}
	}
	return space
}

func (p *streamWriter) Window() []byte {
	p.primary = nil
	for _, s := range p.streams {
		if !s.readerDone.Load() {
			p.primary = s
			_, b := s.writeWindow()
			return b
		}
	}
	return nil
}

func (p *streamWriter) Produce(n int) {
	if n <= 0 {
		return
	}
	live := p.live()
	primary := p.primary
	if primary == nil && len(live) > 0 {
		primary = live[0]
	}
	if primary != nil {
		_, src := primary.writeWindow()
		src = src[:n*p.itemSize]
		for _, s := range live {
			if s == primary {
				continue
			}
			_, dst := s.writeWindow()
			copy(dst, src)
			s.w.Add(uint64(n))
		}
		primary.w.Add(uint64(n))
	}
	p.written.Add(uint64(n))
}

func (p *streamWriter) NitemsWritten() uint64 { return p.written.Load() }

func (p *streamWriter) PostTag(tag core.Tag) {
	for _, s := range p.streams {
		if !s.readerDone.Load() {
			s.tags.Add(tag)
		}
	}
}

// readersDone reports whether nobody will read this output again.
func (p *streamWriter) readersDone() bool {
	return len(p.live()) == 0
}

func windowAligned(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	return core.IsAlignedTo(uintptr(unsafe.Pointer(&b[0])), core.MaxAlignment)
}
