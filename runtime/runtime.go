// Package runtime implements the block work-invocation engine of sigflow.
//
// A flowgraph is a set of blocks connected by item streams. Every call of a
// block goes through an Executor, which samples how many items each input
// holds and how much room each output has, negotiates how many output items
// the call may produce (honouring the block's relative rate, output multiple
// and history), runs the block body, propagates tags across the rate change
// and finally advances the stream cursors.
//
// Key components:
//   - Block: identity, port configuration and rate model shared by processors
//   - Executor: forecast/backoff negotiation and the per-call work contract
//   - Engine: binds blocks, allocates stream buffers and drives one goroutine per block
//   - Arena: one pre-allocated region backing every linear stream buffer
//
// Streams that must keep history are backed by a double-mapped circular
// buffer so that any window is contiguous without copying.
//
// Execution model:
//  1. Validate the graph and order it topologically
//  2. Bind every block to its port counts
//  3. Allocate one buffer per input port
//  4. Invoke blocks until every block reports done
//  5. Collect execution statistics
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/sbl8/sigflow/core"
	"github.com/sbl8/sigflow/internal/ctxlog"
	"github.com/sbl8/sigflow/model"
)

// EngineOptions configures engine behavior
type EngineOptions struct {
	// BufferItems is the minimum capacity of each stream, in items.
	BufferItems int
	// ForceDoubleMapped backs every stream with a circular buffer.
	ForceDoubleMapped bool
	EnableStats       bool
}

// DefaultEngineOptions provides sensible runtime defaults
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		BufferItems: 8192,
		EnableStats: true,
	}
}

// BlockStats tracks the calls of one block.
type BlockStats struct {
	Alias          string
	Calls          int64
	Produced       int64
	InputStarved   int64
	OutputStarved  int64
	AverageLatency time.Duration
}

// ExecutionStats tracks runtime performance metrics
type ExecutionStats struct {
	TotalCalls       int64
	TotalProduced    int64
	AverageLatency   time.Duration
	Blocks           map[uint64]BlockStats
	ArenaUtilization float64
}

// Engine owns a flowgraph: its blocks, their connections and, while running,
// the stream buffers between them.
type Engine struct {
	opts  EngineOptions
	ids   core.IDAllocator
	procs []Processor
	byID  map[uint64]Processor
	edges []model.Edge

	notify  *notifier
	arena   *Arena
	buffers []streamBuffer
	running bool

	stats ExecutionStats
	mu    sync.RWMutex
}

// NewEngine creates an engine; nil opts selects the defaults.
func NewEngine(opts *EngineOptions) *Engine {
	engineOpts := DefaultEngineOptions()
	if opts != nil {
		engineOpts = *opts
		if engineOpts.BufferItems <= 0 {
			engineOpts.BufferItems = DefaultEngineOptions().BufferItems
		}
	}
	return &Engine{
		opts:   engineOpts,
		byID:   make(map[uint64]Processor),
		notify: newNotifier(),
		stats:  ExecutionStats{Blocks: make(map[uint64]BlockStats)},
	}
}

// IDs is the id allocator blocks of this engine must be created with.
func (e *Engine) IDs() *core.IDAllocator { return &e.ids }

// Add registers a processor. Adding the same block twice is an error.
func (e *Engine) Add(p Processor) error {
	id := p.Base().ID()
	if _, ok := e.byID[id]; ok {
		return fmt.Errorf("block %s already added", p.Base().Alias())
	}
	e.byID[id] = p
	e.procs = append(e.procs, p)
	return nil
}

// Connect joins output srcPort of src to input dstPort of dst, adding either
// processor if needed.
func (e *Engine) Connect(src Processor, srcPort int, dst Processor, dstPort int) error {
	for _, p := range []Processor{src, dst} {
		if _, ok := e.byID[p.Base().ID()]; !ok {
			if err := e.Add(p); err != nil {
				return err
			}
		}
	}
	e.edges = append(e.edges, model.Edge{
		Src: src.Base().ID(), SrcPort: srcPort,
		Dst: dst.Base().ID(), DstPort: dstPort,
	})
	return nil
}

// Graph returns the topology registered so far.
func (e *Engine) Graph() *model.Graph {
	g := &model.Graph{Edges: append([]model.Edge(nil), e.edges...)}
	for _, p := range e.procs {
		g.Nodes = append(g.Nodes, model.Node{ID: p.Base().ID(), Name: p.Base().Alias()})
	}
	return g
}

// Run binds, allocates and executes the flowgraph until every block is done,
// a block fails, or ctx is cancelled. An engine runs once.
func (e *Engine) Run(ctx context.Context) error {
	if e.running {
		return errors.New("engine already ran")
	}
	e.running = true
	logger := ctxlog.FromContext(ctx)

	graph := e.Graph()
	if err := graph.Validate(); err != nil {
		return err
	}
	order, err := graph.TopologicalOrder()
	if err != nil {
		return err
	}

	for _, id := range order {
		p := e.byID[id]
		nin, nout := graph.PortCounts(id)
		if err := p.Base().Bind(nin, nout, p); err != nil {
			return err
		}
	}

	executors, err := e.setupStreams(logger, graph, order)
	if err != nil {
		return err
	}
	defer e.releaseBuffers(logger)

	started := make([]*Executor, 0, len(executors))
	for _, ex := range executors {
		if err := ex.Start(); err != nil {
			return errors.Join(err, stopAll(started))
		}
		started = append(started, ex)
	}
	logger.Info("Flowgraph started.", "blocks", len(executors), "streams", len(e.edges))

	g, gctx := errgroup.WithContext(ctx)
	for _, ex := range executors {
		g.Go(func() error {
			return e.runBlock(gctx, ex)
		})
	}
	runErr := g.Wait()
	stopErr := stopAll(executors)
	for _, ex := range executors {
		ex.Block().setState(core.StateDone)
	}

	if runErr != nil {
		logger.Error("Flowgraph failed.", "error", runErr)
		return errors.Join(runErr, stopErr)
	}
	logger.Info("Flowgraph finished.", "calls", e.Stats().TotalCalls)
	return stopErr
}

// setupStreams allocates one buffer per input port and builds the executors
// in topological order.
func (e *Engine) setupStreams(logger *slog.Logger, graph *model.Graph, order []uint64) ([]*Executor, error) {
	type pending struct {
		edge model.Edge
		plan bufferPlan
	}
	var plans []pending
	for _, id := range order {
		dst := e.byID[id].Base()
		for _, edge := range graph.Inputs(id) {
			src := e.byID[edge.Src].Base()
			in := dst.InputConfig(edge.DstPort)
			out := src.OutputConfig(edge.SrcPort)
			if in.ItemSize != out.ItemSize {
				return nil, fmt.Errorf("%w: %s output %d carries %d-byte items, %s input %d expects %d",
					core.ErrTopology, src.Alias(), edge.SrcPort, out.ItemSize, dst.Alias(), edge.DstPort, in.ItemSize)
			}
			name := fmt.Sprintf("%s:%d->%s:%d", src.Alias(), edge.SrcPort, dst.Alias(), edge.DstPort)
			plan, err := planBuffer(name, in, out.ReserveItems, e.opts)
			if err != nil {
				return nil, err
			}
			plans = append(plans, pending{edge: edge, plan: plan})
		}
	}

	bufPlans := make([]bufferPlan, len(plans))
	for i, p := range plans {
		bufPlans[i] = p.plan
	}
	buffers, arena, err := allocateBuffers(bufPlans)
	if err != nil {
		return nil, err
	}
	e.buffers = buffers
	e.arena = arena

	type portKey struct {
		id   uint64
		port int
	}
	readers := make(map[portKey]*streamReader)
	writers := make(map[portKey]*streamWriter)
	for i, p := range plans {
		s := newStream(p.plan.name, buffers[i], p.plan.itemSize, p.plan.preload)
		dst := e.byID[p.edge.Dst].Base()
		readers[portKey{p.edge.Dst, p.edge.DstPort}] = &streamReader{s: s, maximum: dst.InputConfig(p.edge.DstPort).MaximumItems}

		key := portKey{p.edge.Src, p.edge.SrcPort}
		w, ok := writers[key]
		if !ok {
			src := e.byID[p.edge.Src].Base()
			w = &streamWriter{itemSize: src.OutputConfig(p.edge.SrcPort).ItemSize}
			writers[key] = w
		}
		w.streams = append(w.streams, s)

		kind := "linear"
		if p.plan.circular {
			kind = "double-mapped"
		}
		logger.Info("Allocated stream buffer.",
			"stream", p.plan.name,
			"kind", kind,
			"items", p.plan.items,
			"size", humanize.IBytes(uint64(p.plan.sizeBytes())),
			"preload", p.plan.preload)
	}
	if arena != nil {
		logger.Debug("Linear stream arena laid out.", "regions", len(arena.Regions()), "size", humanize.IBytes(uint64(arena.TotalSize())))
	}

	executors := make([]*Executor, 0, len(order))
	for _, id := range order {
		p := e.byID[id]
		b := p.Base()
		ins := make([]InputPort, b.NumInputs())
		for i := range ins {
			ins[i] = readers[portKey{id, i}]
		}
		outs := make([]OutputPort, b.NumOutputs())
		for o := range outs {
			outs[o] = writers[portKey{id, o}]
		}
		ex, err := NewExecutor(p, ins, outs)
		if err != nil {
			return nil, err
		}
		executors = append(executors, ex)
	}
	return executors, nil
}

// runBlock drives one block until it is done. Starved blocks park on the
// notifier; a block whose starved input will never be fed again, or whose
// starved output is read by nobody, finishes.
func (e *Engine) runBlock(ctx context.Context, ex *Executor) error {
	logger := ctxlog.FromContext(ctx).With("block", ex.Block().Alias())
	defer e.finish(ex)

	confirmDone := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wake := e.notify.wait()

		start := time.Now()
		res, err := ex.Invoke()
		if err != nil {
			return err
		}
		e.record(ex.Block(), res, time.Since(start))

		switch res.Outcome {
		case OutcomeProduced:
			confirmDone = false
			e.notify.broadcast()
			continue
		case OutcomeDone:
			logger.Debug("Block reported done.")
			return nil
		case OutcomeNoOutput:
			if sum(res.Consumed) > 0 {
				confirmDone = false
				e.notify.broadcast()
				continue
			}
			if e.upstreamDone(ex) {
				return nil
			}
		case OutcomeInputStarved:
			if ex.InputWriterDone(res.Port) {
				// Items may have landed between sampling and the done flag.
				if confirmDone {
					logger.Debug("Upstream finished, block done.", "port", res.Port)
					return nil
				}
				confirmDone = true
				continue
			}
		case OutcomeOutputStarved:
			if ex.OutputReadersDone(res.Port) {
				logger.Debug("Downstream finished, block done.", "port", res.Port)
				return nil
			}
		}

		if logger.Enabled(ctx, slog.LevelDebug) {
			logger.Debug("Block waiting.", "outcome", res.Outcome.String(), "port", res.Port, "attempts", res.Attempts)
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// upstreamDone reports whether every input of a block that made no progress
// has a finished writer.
func (e *Engine) upstreamDone(ex *Executor) bool {
	n := ex.Block().NumInputs()
	if n == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		if !ex.InputWriterDone(i) {
			return false
		}
	}
	return true
}

// finish marks a block's streams so its neighbours can observe completion.
func (e *Engine) finish(ex *Executor) {
	for _, out := range ex.outs {
		if w, ok := out.(*streamWriter); ok {
			for _, s := range w.streams {
				s.writerDone.Store(true)
			}
		}
	}
	for _, in := range ex.ins {
		if r, ok := in.(*streamReader); ok {
			r.s.readerDone.Store(true)
		}
	}
	ex.Block().setState(core.StateDone)
	e.notify.broadcast()
}

func (e *Engine) record(b *Block, res Result, elapsed time.Duration) {
	if !e.opts.EnableStats {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	bs := e.stats.Blocks[b.ID()]
	bs.Alias = b.Alias()
	switch res.Outcome {
	case OutcomeInputStarved:
		bs.InputStarved++
	case OutcomeOutputStarved:
		bs.OutputStarved++
	default:
		bs.Calls++
		bs.Produced += int64(res.Produced)
		bs.AverageLatency = time.Duration((int64(bs.AverageLatency)*(bs.Calls-1) + int64(elapsed)) / bs.Calls)

		e.stats.TotalCalls++
		e.stats.TotalProduced += int64(res.Produced)
		e.stats.AverageLatency = time.Duration((int64(e.stats.AverageLatency)*(e.stats.TotalCalls-1) + int64(elapsed)) / e.stats.TotalCalls)
	}
	e.stats.Blocks[b.ID()] = bs
}

// Stats returns current execution statistics
func (e *Engine) Stats() ExecutionStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	// Return a copy to avoid races
	stats := e.stats
	stats.Blocks = make(map[uint64]BlockStats, len(e.stats.Blocks))
	for k, v := range e.stats.Blocks {
		stats.Blocks[k] = v
	}
	if e.arena != nil && e.arena.TotalSize() > 0 {
		stats.ArenaUtilization = float64(e.arena.UsedSize()) / float64(e.arena.TotalSize())
	}
	return stats
}

// ArenaBytes returns the arena size in bytes, 0 before Run or without linear streams.
func (e *Engine) ArenaBytes() int {
	if e.arena == nil {
		return 0
	}
	return int(e.arena.TotalSize())
}

func (e *Engine) releaseBuffers(logger *slog.Logger) {
	if err := closeBuffers(e.buffers); err != nil {
		logger.Warn("Releasing stream buffers failed.", "error", err)
	}
	e.buffers = nil
}

func stopAll(executors []*Executor) error {
	var errs []error
	for _, ex := range executors {
		if err := ex.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// notifier wakes every parked block whenever any block makes progress. A
// waiter grabs the channel before checking its condition, so a broadcast
// between the check and the wait is never lost.
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

func (n *notifier) wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

func (n *notifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}
