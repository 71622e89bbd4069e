package workflow

import (
	"context"

	"github.com/deixis/synthkit/internal/command"
	"github.com/deixis/synthkit/internal/config"
	"github.com/deixis/synthkit/internal/report"
)

// Yosys command templates.
const (
	yosysOptTemplate    = "read_verilog %; proc; opt; write_verilog %"
	yosysFirrtlTemplate = "read_verilog %; proc; opt; write_firrtl %"
	yosysStatsTemplate  = "read_verilog %; proc; opt; stat"
)

// YosysOptVerilog elaborates processes, optimizes the design and writes
// Verilog back to the input unless Output is set.
func (e *Engine) YosysOptVerilog(ctx context.Context, p Paths) (*report.Outcome, error) {
	if p.Input == "" {
		return nil, ErrNoInput
	}
	return e.Run(ctx, Request{
		Tool:      config.Yosys,
		Operation: "opt",
		Template:  yosysOptTemplate,
		Values:    e.yosysArgs(p.input(), p.output(p.Input)),
		Dir:       p.Dir,
	})
}

// YosysWriteFirrtl optimizes the design and writes it as FIRRTL to
// <stem>.fir unless Output is set.
func (e *Engine) YosysWriteFirrtl(ctx context.Context, p Paths) (*report.Outcome, error) {
	if p.Input == "" {
		return nil, ErrNoInput
	}
	return e.Run(ctx, Request{
		Tool:      config.Yosys,
		Operation: "firrtl",
		Template:  yosysFirrtlTemplate,
		Values:    e.yosysArgs(p.input(), p.output(FirrtlName(p.Input))),
		Dir:       p.Dir,
	})
}

// YosysStats prints design statistics after optimization.
func (e *Engine) YosysStats(ctx context.Context, p Paths) (*report.Outcome, error) {
	if p.Input == "" {
		return nil, ErrNoInput
	}
	return e.Run(ctx, Request{
		Tool:      config.Yosys,
		Operation: "stats",
		Template:  yosysStatsTemplate,
		Values:    e.yosysArgs(p.input()),
		Mode:      command.Statistics,
		Dir:       p.Dir,
	})
}

// FirrtlName returns the file name of the FIRRTL rendition of name.
func FirrtlName(name string) string {
	return swapExt(name, ".fir")
}

func (e *Engine) yosysArgs(paths ...string) []any {
	return quoted(e.Config, config.Yosys, paths)
}
