package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	goruntime "runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sbl8/sigflow/blocks"
	"github.com/sbl8/sigflow/internal/ctxlog"
	"github.com/sbl8/sigflow/kernels"
	"github.com/sbl8/sigflow/runtime"
)

var (
	testType = flag.String("test", "all", "Test type: all, kernels, graph")
	size     = flag.Int("size", 1024, "Kernel test vector length")
	iter     = flag.Int("iter", 1000, "Kernel iterations")
	items    = flag.Int("items", 10_000_000, "Items pushed through the graph test")
	taps     = flag.Int("taps", 16, "FIR taps in the graph test")
	bufItems = flag.Int("buffer-items", 8192, "Stream buffer size in items")
	verbose  = flag.Bool("verbose", false, "Verbose output")
)

func main() {
	flag.Parse()
	w := os.Stdout

	fmt.Fprintf(w, "sigflow Performance Analysis Tool\n")
	fmt.Fprintf(w, "=================================\n")
	fmt.Fprintf(w, "Go Version: %s\n", goruntime.Version())
	fmt.Fprintf(w, "OS/Arch: %s/%s\n", goruntime.GOOS, goruntime.GOARCH)
	fmt.Fprintf(w, "CPUs: %d\n\n", goruntime.NumCPU())

	var err error
	switch *testType {
	case "all":
		runKernelTests(w, *size, *iter)
		err = runGraphTest(w, *items, *taps, *bufItems)
	case "kernels":
		runKernelTests(w, *size, *iter)
	case "graph":
		err = runGraphTest(w, *items, *taps, *bufItems)
	default:
		fmt.Fprintf(os.Stderr, "Unknown test type: %s\n", *testType)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sigperf: %v\n", err)
		os.Exit(1)
	}
}

func rate(n int, d time.Duration) string {
	return humanize.SIWithDigits(float64(n)/d.Seconds(), 2, "items/s")
}

func runKernelTests(w io.Writer, size, iter int) {
	fmt.Fprintf(w, "Kernel Performance\n")
	fmt.Fprintf(w, "------------------\n")

	a := generateFloat32(size)
	b := generateFloat32(size)
	dst := make([]float32, size)

	tests := []struct {
		name string
		fn   func()
	}{
		{"Add", func() { kernels.Add(dst, a, b) }},
		{"Mul", func() { kernels.Mul(dst, a, b) }},
		{"Scale", func() { kernels.Scale(dst, a, 0.5) }},
		{"Dot", func() { _ = kernels.Dot(a, b) }},
	}
	for _, name := range kernels.MapNames() {
		fn, _ := kernels.Lookup(name)
		tests = append(tests, struct {
			name string
			fn   func()
		}{"Map " + name, func() { kernels.Apply(fn, dst, a) }})
	}

	for _, test := range tests {
		start := time.Now()
		for i := 0; i < iter; i++ {
			test.fn()
		}
		d := time.Since(start)
		fmt.Fprintf(w, "%-18s %12v  %s\n", test.name, d, rate(size*iter, d))
	}
	fmt.Fprintf(w, "\n")
}

// runGraphTest times null_source -> head -> fir_filter -> multiply_const -> null_sink.
func runGraphTest(w io.Writer, n, ntaps, bufferItems int) error {
	fmt.Fprintf(w, "Flowgraph Throughput\n")
	fmt.Fprintf(w, "--------------------\n")

	e := runtime.NewEngine(&runtime.EngineOptions{BufferItems: bufferItems, EnableStats: true})
	head, err := blocks.NewHead(e.IDs(), n, 4)
	if err != nil {
		return err
	}
	fir, err := blocks.NewFIRFilter(e.IDs(), generateFloat32(ntaps), 1)
	if err != nil {
		return err
	}
	sink := blocks.NewNullSink(e.IDs(), 4)
	chain := []runtime.Processor{
		blocks.NewNullSource(e.IDs(), 4), head, fir, blocks.NewMultiplyConst(e.IDs(), 0.5), sink,
	}
	for i := 0; i+1 < len(chain); i++ {
		if err := e.Connect(chain[i], 0, chain[i+1], 0); err != nil {
			return err
		}
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	start := time.Now()
	if err := e.Run(ctx); err != nil {
		return err
	}
	d := time.Since(start)

	stats := e.Stats()
	fmt.Fprintf(w, "Items:        %s\n", humanize.Comma(int64(sink.Count())))
	fmt.Fprintf(w, "Elapsed:      %v\n", d)
	fmt.Fprintf(w, "Throughput:   %s\n", rate(int(sink.Count()), d))
	fmt.Fprintf(w, "Work calls:   %s\n", humanize.Comma(stats.TotalCalls))
	fmt.Fprintf(w, "Avg latency:  %v\n", stats.AverageLatency)
	if *verbose {
		for _, bs := range stats.Blocks {
			fmt.Fprintf(w, "  %-20s calls=%s starved=%s/%s\n", bs.Alias,
				humanize.Comma(bs.Calls), humanize.Comma(bs.InputStarved), humanize.Comma(bs.OutputStarved))
		}
	}
	fmt.Fprintf(w, "\n")
	return nil
}

func generateFloat32(size int) []float32 {
	data := make([]float32, size)
	for i := range data {
		data[i] = rand.Float32()*2 - 1
	}
	return data
}
