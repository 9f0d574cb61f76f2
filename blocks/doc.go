// Package blocks is a small library of reference processors for sigflow
// flowgraphs: sources, sinks, stream control, rate changers, a FIR filter and
// a few arithmetic blocks.
//
// Every block is created with the engine's id allocator and can also be built
// by name from configuration through Build. Float blocks carry float32 items;
// the stream-control and rate blocks copy items of any size.
//
// Registered kinds:
//   - vector_source, null_source
//   - vector_sink, null_sink
//   - head, keep_one_in_n, repeat
//   - fir_filter, add, multiply_const, map
//   - tag_filter
package blocks
