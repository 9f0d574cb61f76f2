package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	goruntime "runtime"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sbl8/sigflow/blocks"
	"github.com/sbl8/sigflow/config"
	"github.com/sbl8/sigflow/internal/ctxlog"
	"github.com/sbl8/sigflow/runtime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "sigrun: %v\n", err)
		}
		os.Exit(1)
	}
}

// run loads a flowgraph file, executes it until every block is done or ctx
// is cancelled, and prints per-block statistics to stdout.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sigrun", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		logLevel  = fs.String("log-level", "", "Log level: debug, info, warn, error (overrides the config file)")
		logFormat = fs.String("log-format", "", "Log format: text or json (overrides the config file)")
		timeout   = fs.Duration("timeout", 0, "Stop the flowgraph after this long (0 runs until done)")
		listKinds = fs.Bool("list-kinds", false, "List the available block kinds and exit")
		version   = fs.Bool("version", false, "Show version information")
	)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sigrun [options] <graph.yaml|graph.hcl>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *version {
		fmt.Fprintln(stdout, "sigrun - sigflow runtime v1.0.0")
		fmt.Fprintf(stdout, "Built with Go %s\n", goruntime.Version())
		return nil
	}
	if *listKinds {
		for _, k := range blocks.Kinds() {
			fmt.Fprintln(stdout, k)
		}
		return nil
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one flowgraph file")
	}

	cfg, err := config.Load(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to load flowgraph: %w", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	fg, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build flowgraph: %w", err)
	}

	logger := newLogger(cfg.Log.Level, cfg.Log.Format, stderr)
	ctx = ctxlog.WithLogger(ctx, logger)
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	start := time.Now()
	runErr := fg.Engine.Run(ctx)
	elapsed := time.Since(start)
	if runErr != nil && !stoppedByUser(ctx, runErr, *timeout) {
		return fmt.Errorf("flowgraph failed: %w", runErr)
	}

	if cfg.EngineOptions().EnableStats {
		printStats(stdout, fg.Engine.Stats(), elapsed)
	}
	return nil
}

// stoppedByUser reports whether err only reflects a requested stop: a signal
// or the -timeout flag.
func stoppedByUser(ctx context.Context, err error, timeout time.Duration) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return timeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil
}

func printStats(w io.Writer, stats runtime.ExecutionStats, elapsed time.Duration) {
	rows := make([]runtime.BlockStats, 0, len(stats.Blocks))
	for _, bs := range stats.Blocks {
		rows = append(rows, bs)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Alias < rows[j].Alias })

	fmt.Fprintf(w, "%-24s %12s %14s %10s %10s %12s\n", "block", "calls", "produced", "in-starve", "out-starve", "avg latency")
	for _, bs := range rows {
		fmt.Fprintf(w, "%-24s %12s %14s %10s %10s %12v\n",
			bs.Alias,
			humanize.Comma(bs.Calls),
			humanize.Comma(bs.Produced),
			humanize.Comma(bs.InputStarved),
			humanize.Comma(bs.OutputStarved),
			bs.AverageLatency)
	}
	fmt.Fprintf(w, "total: %s calls, %s items in %v\n",
		humanize.Comma(stats.TotalCalls), humanize.Comma(stats.TotalProduced), elapsed.Round(time.Microsecond))
}
