// Package sigflow implements a streaming signal-processing runtime built
// around a block work-invocation engine.
//
// A flowgraph is a set of blocks joined by single-writer streams. Each block
// declares a rate model (relative rate, output multiple, history, fixed-rate
// flag) and the engine calls its work function with as many items as every
// input can supply and every output can hold, honoring those constraints.
//
// # Architecture Overview
//
// The engine consists of several key components:
//
//   - Rate model: per-block rate, alignment and history settings that derive
//     per-port reserve and lookback
//   - Work invoker: negotiates the item count of one call, runs the block and
//     advances the stream cursors
//   - Tag propagation: moves item tags from consumed inputs to outputs with
//     offsets rescaled by the relative rate
//   - Buffers: double-mapped circular buffers for history and wrap-free
//     windows, arena-backed linear buffers otherwise
//   - Engine: one goroutine per block, woken on every stream change
//
// # Basic Usage
//
//	// Run a flowgraph file
//	sigrun -log-level debug examples/fir.yaml
//
//	// Or build one in code
//	e := runtime.NewEngine(nil)
//	src, _ := blocks.NewVectorSource(e.IDs(), []float32{1, 2, 3}, false, nil)
//	fir, _ := blocks.NewFIRFilter(e.IDs(), []float32{0.5, 0.5}, 1)
//	sink := blocks.NewVectorSink(e.IDs())
//	_ = e.Connect(src, 0, fir, 0)
//	_ = e.Connect(fir, 0, sink, 0)
//	if err := e.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Package Structure
//
//   - core: Rate model, port configuration, io signatures, tags and alignment
//   - runtime: Block base, work invoker, streams, buffers and the engine
//   - blocks: Reference blocks and the kind registry used by config files
//   - kernels: float32 vector kernels shared by the blocks
//   - model: Flowgraph topology and validation
//   - config: YAML and HCL flowgraph files
//   - cmd: Command-line tools (sigrun, sigperf)
package sigflow
