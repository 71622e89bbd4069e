// Command synthkit runs batched ABC and Yosys command sequences.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deixis/synthkit"
	"github.com/deixis/synthkit/internal/command"
	"github.com/deixis/synthkit/internal/config"
	"github.com/deixis/synthkit/internal/logging"
	synthmcp "github.com/deixis/synthkit/internal/mcp"
	"github.com/deixis/synthkit/internal/metrics"
	"github.com/deixis/synthkit/internal/report"
	"github.com/deixis/synthkit/internal/runner"
	"github.com/deixis/synthkit/internal/workflow"
)

// errNotCorrect makes main exit 1 without printing anything more.
var errNotCorrect = errors.New("run was not correct")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "abc":
		err = abcMain(args)
	case "yosys":
		err = yosysMain(args)
	case "run":
		err = runMain(args)
	case "doctor":
		err = doctorMain(args)
	case "mcp":
		err = mcpMain(args)
	case "version":
		fmt.Println(synthkit.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "synthkit: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if errors.Is(err, errNotCorrect) {
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "synthkit: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: synthkit <command> [flags] [args]

Commands:
  abc stats|resyn2|map|bench   Run an ABC operation on a circuit
  yosys opt|firrtl|stats       Run a Yosys operation on a Verilog file
  run                          Run an arbitrary ";"-separated command sequence
  doctor                       Report whether abc and yosys are installed
  mcp                          Start the MCP server
  version                      Print the version
  help                         Show this help

Use "synthkit <command> -h" for command-specific flags.
Set SYNTHKIT_LOG_LEVEL=debug to see every composite command sent.`)
}

// --- abc / yosys ---

// opFlags are the flags shared by every file operation.
type opFlags struct {
	fs      *flag.FlagSet
	lib     *string
	fileDir *string
	libDir  *string
	output  *string
	jobs    *int
	common  commonFlags
}

func newOpFlags(name string, withLib bool) *opFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	f := &opFlags{
		fs:      fs,
		fileDir: fs.String("dir", ".", "directory of the input file"),
		output:  fs.String("o", "", "output file name, relative to -dir (default depends on the operation)"),
		jobs:    fs.Int("j", 0, "maximum number of tool processes at once when given several inputs (default GOMAXPROCS)"),
		lib:     new(string),
		libDir:  new(string),
	}
	if withLib {
		f.lib = fs.String("lib", "", "liberty file name, relative to -libdir")
		f.libDir = fs.String("libdir", ".", "directory of the liberty file")
	}
	f.common.register(fs)
	return f
}

func (f *opFlags) paths() ([]workflow.Paths, error) {
	if f.fs.NArg() == 0 {
		return nil, fmt.Errorf("%s: expected at least one input file", f.fs.Name())
	}
	paths := make([]workflow.Paths, 0, f.fs.NArg())
	for _, input := range f.fs.Args() {
		paths = append(paths, workflow.Paths{
			Input:   input,
			Lib:     *f.lib,
			FileDir: *f.fileDir,
			LibDir:  *f.libDir,
			Output:  *f.output,
		})
	}
	if len(paths) > 1 && *f.output != "" {
		return nil, fmt.Errorf("%s: -o cannot be used with several input files", f.fs.Name())
	}
	return paths, nil
}

type operation func(*workflow.Engine, context.Context, workflow.Paths) (*report.Outcome, error)

var abcOps = map[string]operation{
	"stats":  (*workflow.Engine).ABCStats,
	"resyn2": (*workflow.Engine).ABCResyn2,
	"map":    (*workflow.Engine).ABCOptimizeWithLib,
	"bench":  (*workflow.Engine).ABCVerilogToBench,
}

var yosysOps = map[string]operation{
	"opt":    (*workflow.Engine).YosysOptVerilog,
	"firrtl": (*workflow.Engine).YosysWriteFirrtl,
	"stats":  (*workflow.Engine).YosysStats,
}

func abcMain(args []string) error {
	return opMain("abc", abcOps, true, args)
}

func yosysMain(args []string) error {
	return opMain("yosys", yosysOps, false, args)
}

func opMain(tool string, ops map[string]operation, withLib bool, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s: missing operation", tool)
	}
	op, ok := ops[args[0]]
	if !ok {
		return fmt.Errorf("%s: unknown operation %q", tool, args[0])
	}

	f := newOpFlags(tool+" "+args[0], withLib)
	_ = f.fs.Parse(args[1:])
	paths, err := f.paths()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng, cleanup, err := newEngine(f.common)
	if err != nil {
		return err
	}
	defer cleanup()

	outcomes, err := eng.ForEach(ctx, paths, *f.jobs, func(ctx context.Context, p workflow.Paths) (*report.Outcome, error) {
		return op(eng, ctx, p)
	})
	if err != nil {
		return err
	}
	return printOutcomes(eng, outcomes, f.common)
}

// --- run ---

func runMain(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	tool := fs.String("tool", config.ABC, "tool to run: abc or yosys")
	stats := fs.Bool("stats", false, "attribute output by the statistics command's precomputed offset")
	var common commonFlags
	common.register(fs)
	_ = fs.Parse(args)

	composite := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(composite) == "" {
		return errors.New(`run: missing command, e.g. synthkit run -tool abc "read a.v; strash; print_stats"`)
	}

	mode := command.Standard
	if *stats {
		mode = command.Statistics
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng, cleanup, err := newEngine(common)
	if err != nil {
		return err
	}
	defer cleanup()

	o, err := eng.Batch(ctx, *tool, composite, mode)
	if err != nil {
		return err
	}
	return printOutcomes(eng, []*report.Outcome{o}, common)
}

// --- doctor ---

func doctorMain(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	_ = fs.Parse(args)

	eng, cleanup, err := newEngine(common)
	if err != nil {
		return err
	}
	defer cleanup()

	missing := false
	for _, name := range []string{config.ABC, config.Yosys} {
		if err := eng.CheckTool(name); err != nil {
			missing = true
			fmt.Printf("%-6s missing\n\n%v\n\n", name, err)
			continue
		}
		tc, _ := eng.Config.Tool(name)
		fmt.Printf("%-6s ok (%s)\n", name, tc.Binary)
	}
	if missing {
		return errNotCorrect
	}
	return nil
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	metricsAddr := fs.String("metrics", "", "serve Prometheus metrics on address (e.g. :9091)")
	verbose := fs.Bool("v", false, "debug logging")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(synthmcp.Instructions)
		return nil
	}

	logger, err := logging.New(logging.Options{Verbose: *verbose})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return serve(ctx, logger, *httpAddr, *metricsAddr)
}

func serve(ctx context.Context, logger *zap.Logger, httpAddr, metricsAddr string) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	disk := report.NewDiskStore(cfg.ResultsDir)
	store := report.NewLRUStore(16, disk)

	r := &runner.Runner{
		Workspace:   workspace,
		Timeout:     cfg.Timeout(),
		MaxOutput:   cfg.MaxOutputBytes(),
		MergeOutput: cfg.MergeOutputStreams(),
		Logger:      logger,
	}

	opts := []synthmcp.ServerOption{synthmcp.WithLogger(logger)}
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		rec, err := metrics.New(reg)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		opts = append(opts, synthmcp.WithMetrics(rec))
		go serveMetrics(ctx, logger, reg, metricsAddr)
	}

	server := synthmcp.NewServer(cfg, r, store, workspace, opts...)

	if httpAddr != "" {
		return serveHTTP(ctx, logger, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, logger *zap.Logger, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info("listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func serveMetrics(ctx context.Context, logger *zap.Logger, reg *prometheus.Registry, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server", zap.Error(err))
	}
}

// --- shared ---

type commonFlags struct {
	json    *bool
	verbose *bool
	timeout *time.Duration
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	c.json = fs.Bool("json", false, "output the outcome as JSON")
	c.verbose = fs.Bool("v", false, "print every sub-command's output and debug logs")
	c.timeout = fs.Duration("timeout", 0, "override configured timeout (e.g. 5m)")
}

func newEngine(flags commonFlags) (*workflow.Engine, func(), error) {
	logger, err := logging.New(logging.Options{Verbose: *flags.verbose})
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	cleanup := func() { _ = logger.Sync() }

	workspace, err := os.Getwd()
	if err != nil {
		return nil, cleanup, fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, cleanup, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	timeout := cfg.Timeout()
	if *flags.timeout > 0 {
		timeout = *flags.timeout
	}

	r := &runner.Runner{
		Workspace:   workspace,
		Timeout:     timeout,
		MaxOutput:   cfg.MaxOutputBytes(),
		MergeOutput: cfg.MergeOutputStreams(),
		Logger:      logger,
	}

	return &workflow.Engine{
		Config:    cfg,
		Runner:    r,
		Workspace: workspace,
		Logger:    logger,
	}, cleanup, nil
}

func printOutcomes(eng *workflow.Engine, outcomes []*report.Outcome, flags commonFlags) error {
	if *flags.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		var v any = outcomes
		if len(outcomes) == 1 {
			v = outcomes[0]
		}
		if err := enc.Encode(v); err != nil {
			return err
		}
	} else {
		for i, o := range outcomes {
			if i > 0 {
				fmt.Println()
			}
			statsVerb := ""
			if tc, err := eng.Config.Tool(o.Tool); err == nil {
				statsVerb = tc.StatsCommand
			}
			fmt.Print(formatOutcomeCLI(o, statsVerb, *flags.verbose))
		}
	}

	for _, o := range outcomes {
		if !o.Correct {
			return errNotCorrect
		}
	}
	return nil
}

func formatOutcomeCLI(o *report.Outcome, statsVerb string, verbose bool) string {
	var b []byte
	w := func(format string, args ...any) {
		b = fmt.Appendf(b, format, args...)
	}

	if o.Correct {
		w("ok   %s %s\t%s\n", o.Tool, o.Operation, o.Duration.Round(time.Millisecond))
	} else {
		w("FAIL %s %s\t%s: %s\n", o.Tool, o.Operation, o.Failure, o.Detail)
	}
	w("     %s\n\n", o.Command)

	for _, k := range o.Keys {
		if k == o.Command && !o.Correct {
			continue
		}
		w("  %-30s %d bytes\n", k, len(o.Outputs[k]))
	}

	shown := map[string]bool{}
	if verbose {
		for _, k := range o.Keys {
			shown[k] = true
		}
	} else if statsVerb != "" {
		for _, e := range report.ByCommand(o, statsVerb) {
			shown[e.Key] = true
		}
	}
	for _, k := range o.Keys {
		if !shown[k] || o.Outputs[k] == "" {
			continue
		}
		w("\n%s:\n%s", k, o.Outputs[k])
		if !strings.HasSuffix(o.Outputs[k], "\n") {
			w("\n")
		}
	}
	return string(b)
}
