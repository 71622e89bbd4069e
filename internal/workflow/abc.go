package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/deixis/synthkit/internal/command"
	"github.com/deixis/synthkit/internal/config"
	"github.com/deixis/synthkit/internal/report"
)

// ErrNoInput is returned when an operation is called without an input file.
var ErrNoInput = errors.New("input file is required")

// Paths locates the files of a synthesis operation. Directories default
// to the current one.
type Paths struct {
	Input   string // circuit file name, relative to FileDir
	Lib     string // liberty file name, relative to LibDir
	FileDir string
	LibDir  string
	// Output overrides where operations that write a circuit put it.
	// Empty means the operation's default.
	Output string
	// Dir is the working directory of the tool, relative to the workspace.
	Dir string
}

func (p Paths) input() string { return ResolvePath(p.FileDir, p.Input) }
func (p Paths) lib() string   { return ResolvePath(p.LibDir, p.Lib) }

// output returns the explicit output path or fallback resolved in FileDir.
func (p Paths) output(fallback string) string {
	if p.Output != "" {
		return ResolvePath(p.FileDir, p.Output)
	}
	return ResolvePath(p.FileDir, fallback)
}

// ABC command templates.
const (
	abcStatsTemplate = "read_lib %; read %; map; print_stats"

	abcResyn2Template = "read_lib %; read %; strash; " +
		"balance; rewrite; refactor; balance; rewrite; rewrite -z; " +
		"balance; refactor -z; rewrite -z; balance; map; write %"

	abcOptimizeTemplate = "read_lib %; read %; strash; dch; map; topo; write %"

	abcBenchTemplate = "read %; strash; write_bench %"
)

// ABCStats maps the input with the liberty file and prints its
// statistics. The print_stats output is sliced by byte offset only when
// the abc profile knows the output length of every sub-command up to it:
// read_lib and print_stats have no default length, so statistics mode
// needs "lengths: {read_lib: N}" and "stats_length: M" in .synthkit.
// Otherwise the run falls back to markers and the outcome's Mode says so.
func (e *Engine) ABCStats(ctx context.Context, p Paths) (*report.Outcome, error) {
	if err := requireLib(p); err != nil {
		return nil, err
	}
	return e.Run(ctx, Request{
		Tool:      config.ABC,
		Operation: "stats",
		Template:  abcStatsTemplate,
		Values:    e.abcArgs(p.lib(), p.input()),
		Mode:      command.Statistics,
		Dir:       p.Dir,
	})
}

// ABCResyn2 runs the resyn2 rewriting script, maps the result and writes
// it back to the input file unless Output is set.
func (e *Engine) ABCResyn2(ctx context.Context, p Paths) (*report.Outcome, error) {
	if err := requireLib(p); err != nil {
		return nil, err
	}
	return e.Run(ctx, Request{
		Tool:      config.ABC,
		Operation: "resyn2",
		Template:  abcResyn2Template,
		Values:    e.abcArgs(p.lib(), p.input(), p.output(p.Input)),
		Dir:       p.Dir,
	})
}

// ABCOptimizeWithLib performs choice-based technology mapping against the
// liberty file and writes the result back to the input unless Output is set.
func (e *Engine) ABCOptimizeWithLib(ctx context.Context, p Paths) (*report.Outcome, error) {
	if err := requireLib(p); err != nil {
		return nil, err
	}
	return e.Run(ctx, Request{
		Tool:      config.ABC,
		Operation: "map",
		Template:  abcOptimizeTemplate,
		Values:    e.abcArgs(p.lib(), p.input(), p.output(p.Input)),
		Dir:       p.Dir,
	})
}

// ABCVerilogToBench converts the input to BENCH format. The result is
// written next to the input as <stem>.bench unless Output is set.
func (e *Engine) ABCVerilogToBench(ctx context.Context, p Paths) (*report.Outcome, error) {
	if p.Input == "" {
		return nil, ErrNoInput
	}
	return e.Run(ctx, Request{
		Tool:      config.ABC,
		Operation: "bench",
		Template:  abcBenchTemplate,
		Values:    e.abcArgs(p.input(), p.output(BenchName(p.Input))),
		Dir:       p.Dir,
	})
}

// BenchName returns the file name of the BENCH rendition of name.
func BenchName(name string) string {
	return swapExt(name, ".bench")
}

func swapExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

func requireLib(p Paths) error {
	if p.Input == "" {
		return ErrNoInput
	}
	if p.Lib == "" {
		return errors.New("liberty file is required")
	}
	return nil
}

func (e *Engine) abcArgs(paths ...string) []any {
	return quoted(e.Config, config.ABC, paths)
}

func quoted(cfg *config.Config, tool string, paths []string) []any {
	sep := byte(command.DefaultSeparator)
	if tc, err := cfg.Tool(tool); err == nil && len(tc.Separator) == 1 {
		sep = tc.Separator[0]
	}
	vals := make([]any, len(paths))
	for i, p := range paths {
		vals[i] = QuoteArg(p, sep)
	}
	return vals
}
